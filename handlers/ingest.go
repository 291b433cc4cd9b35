// Package handlers wires the HTTP ingest surface onto the
// submission processors and read stores. The transport stays thin: multipart
// parsing and embed flattening here, every decision in the processors.
package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"mime/multipart"
	"strconv"
	"strings"
	"sync"

	"droptracker-ingest/apierrors"
	"droptracker-ingest/attachment"
	"droptracker-ingest/models"
	"droptracker-ingest/processors"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// embedPayload is the multipart payload_json shape: one or more embeds whose
// fields[].name -> fields[].value pairs flatten into a submission map.
type embedPayload struct {
	Embeds []embed `json:"embeds"`
}

type embed struct {
	Title  string       `json:"title"`
	Fields []embedField `json:"fields"`
}

type embedField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Ingest owns the ingestion routes' shared state: the processor service and
// the /check poison-pill counter.
type Ingest struct {
	Service *processors.Service
	DB      *gorm.DB

	checkMu       sync.Mutex
	checkFailures map[string]int
	checkOrder    []string
}

// checkFailureLimit is the poison-pill shield: after this many failed
// /check lookups for one uuid, the response claims processed=true so clients
// stop retrying a submission that will never land.
const checkFailureLimit = 10

const checkCounterCap = 5000

func NewIngest(svc *processors.Service, db *gorm.DB) *Ingest {
	return &Ingest{Service: svc, DB: db, checkFailures: make(map[string]int)}
}

// SetupIngestRoutes registers the player-facing ingestion endpoints. These
// stay open; the submitter is authenticated per submission by the Auth Gate,
// not by a gateway token.
func SetupIngestRoutes(app *fiber.App, ingest *Ingest) {
	app.Post("/webhook", ingest.HandleWebhook)
	app.Post("/submit", ingest.HandleWebhook)
	app.Post("/check", ingest.HandleCheck)
}

// HandleWebhook processes each embed in the multipart payload through the
// dispatcher and answers with per-item notices, summarized by the last one.
func (h *Ingest) HandleWebhook(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
			"error": "multipart form required",
		})
	}

	payloadJSON := formValue(form, "payload_json")
	if payloadJSON == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "payload_json is required",
		})
	}
	var payload embedPayload
	if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "payload_json is not valid JSON",
		})
	}
	if len(payload.Embeds) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "payload contains no embeds",
		})
	}

	upload := readUpload(form)

	notices := make([]string, 0, len(payload.Embeds))
	lastNotice := ""
	for _, e := range payload.Embeds {
		fields := make(map[string]string, len(e.Fields))
		for _, f := range e.Fields {
			fields[strings.ToLower(strings.TrimSpace(f.Name))] = f.Value
		}
		result, err := h.dispatch(c, fields, upload)
		if err != nil {
			notice := noticeForError(err)
			notices = append(notices, notice)
			lastNotice = notice
			var apiErr *apierrors.Error
			if errors.As(err, &apiErr) && apiErr.Kind.HTTPStatus() >= 500 {
				log.Printf("❌ webhook item failed: %v", err)
			}
			continue
		}
		notices = append(notices, result.Notice)
		lastNotice = result.Notice
	}

	return c.JSON(fiber.Map{
		"message": lastNotice,
		"notices": notices,
	})
}

// dispatch routes one flattened embed by its type field.
func (h *Ingest) dispatch(c *fiber.Ctx, fields map[string]string, upload *processors.Upload) (*processors.Result, error) {
	ctx := c.Context()
	switch fields["type"] {
	case "drop", "other", "npc":
		return h.Service.ProcessDrop(ctx, dropFromFields(fields, upload))
	case "personal_best", "kill_time", "npc_kill":
		return h.Service.ProcessPB(ctx, pbFromFields(fields, upload))
	case "combat_achievement":
		return h.Service.ProcessCA(ctx, caFromFields(fields, upload))
	case "collection_log":
		return h.Service.ProcessClog(ctx, clogFromFields(fields, upload))
	case "pet":
		return h.Service.ProcessPet(ctx, petFromFields(fields, upload))
	case "adventure_log":
		return h.Service.ProcessAdventureLog(ctx, adventureLogFromFields(fields))
	case "experience_update", "experience_milestone", "level_up", "quest_completion":
		// Reserved types: accepted, currently no-op.
		return &processors.Result{Notice: "submission type not yet processed"}, nil
	default:
		return nil, apierrors.Validation("unrecognized submission type " + strconv.Quote(fields["type"]))
	}
}

// HandleCheck answers whether a previously submitted uuid landed, with the
// poison-pill shield after repeated misses.
func (h *Ingest) HandleCheck(c *fiber.Ctx) error {
	var body struct {
		UUID string `json:"uuid"`
	}
	if err := c.BodyParser(&body); err != nil || body.UUID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "uuid is required"})
	}

	kind, id, found := h.lookupSubmission(c, body.UUID)
	if found {
		h.clearCheckFailures(body.UUID)
		return c.JSON(fiber.Map{
			"processed": true, "status": "processed",
			"uuid": body.UUID, "type": kind, "id": id,
		})
	}

	failures := h.recordCheckFailure(body.UUID)
	if failures >= checkFailureLimit {
		return c.JSON(fiber.Map{
			"processed": true, "status": "abandoned", "uuid": body.UUID,
		})
	}
	return c.JSON(fiber.Map{
		"processed": false, "status": "pending", "uuid": body.UUID,
	})
}

func (h *Ingest) lookupSubmission(c *fiber.Ctx, uuid string) (kind string, id uint64, found bool) {
	ctx := c.Context()
	var drop models.Drop
	if err := h.DB.WithContext(ctx).Where("unique_id = ?", uuid).First(&drop).Error; err == nil {
		return attachment.KindDrop, drop.DropID, true
	}
	var pb models.PersonalBest
	if err := h.DB.WithContext(ctx).Where("unique_id = ?", uuid).First(&pb).Error; err == nil {
		return attachment.KindPB, pb.ID, true
	}
	var ca models.CombatAchievement
	if err := h.DB.WithContext(ctx).Where("unique_id = ?", uuid).First(&ca).Error; err == nil {
		return attachment.KindCA, ca.ID, true
	}
	var clog models.CollectionLogEntry
	if err := h.DB.WithContext(ctx).Where("unique_id = ?", uuid).First(&clog).Error; err == nil {
		return attachment.KindClog, clog.LogID, true
	}
	return "", 0, false
}

func (h *Ingest) recordCheckFailure(uuid string) int {
	h.checkMu.Lock()
	defer h.checkMu.Unlock()
	if _, ok := h.checkFailures[uuid]; !ok {
		if len(h.checkOrder) >= checkCounterCap {
			oldest := h.checkOrder[0]
			h.checkOrder = h.checkOrder[1:]
			delete(h.checkFailures, oldest)
		}
		h.checkOrder = append(h.checkOrder, uuid)
	}
	h.checkFailures[uuid]++
	return h.checkFailures[uuid]
}

func (h *Ingest) clearCheckFailures(uuid string) {
	h.checkMu.Lock()
	defer h.checkMu.Unlock()
	delete(h.checkFailures, uuid)
}

// noticeForError keeps the client-facing message soft:
// messages for auth/duplicate/unknown-reference, the reason for rejections.
func noticeForError(err error) string {
	var apiErr *apierrors.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return "submission failed"
}

func formValue(form *multipart.Form, key string) string {
	if vs, ok := form.Value[key]; ok && len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func readUpload(form *multipart.Form) *processors.Upload {
	files, ok := form.File["file"]
	if !ok || len(files) == 0 {
		return nil
	}
	fh := files[0]
	data, err := attachment.ReadMultipart(fh)
	if err != nil {
		log.Printf("⚠️  upload read failed: %v", err)
		return nil
	}
	return &processors.Upload{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}
}
