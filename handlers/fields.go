package handlers

import (
	"strconv"
	"strings"

	"droptracker-ingest/processors"
)

// Field accessors over a flattened embed. Older plugin builds used shorter
// field names, so each accessor tries the aliases in order.

func firstField(fields map[string]string, names ...string) string {
	for _, name := range names {
		if v, ok := fields[name]; ok && v != "" {
			return v
		}
	}
	return ""
}

func fieldInt64(fields map[string]string, names ...string) int64 {
	raw := firstField(fields, names...)
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(strings.ReplaceAll(raw, ",", ""), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func fieldInt(fields map[string]string, names ...string) int {
	return int(fieldInt64(fields, names...))
}

func fieldIntPtr(fields map[string]string, names ...string) *int {
	raw := firstField(fields, names...)
	if raw == "" {
		return nil
	}
	n, err := strconv.Atoi(strings.ReplaceAll(raw, ",", ""))
	if err != nil {
		return nil
	}
	return &n
}

func fieldUintPtr(fields map[string]string, names ...string) *uint {
	raw := firstField(fields, names...)
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return nil
	}
	u := uint(n)
	return &u
}

func fieldBool(fields map[string]string, names ...string) bool {
	switch strings.ToLower(firstField(fields, names...)) {
	case "true", "1", "yes":
		return true
	}
	return false
}

func fieldLines(fields map[string]string, names ...string) []string {
	raw := firstField(fields, names...)
	if raw == "" {
		return nil
	}
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

func fieldUintList(fields map[string]string, names ...string) []uint {
	raw := firstField(fields, names...)
	if raw == "" {
		return nil
	}
	var out []uint
	for _, part := range strings.Split(raw, ",") {
		n, err := strconv.ParseUint(strings.TrimSpace(part), 10, 32)
		if err != nil {
			continue
		}
		out = append(out, uint(n))
	}
	return out
}

func dropFromFields(fields map[string]string, up *processors.Upload) processors.DropSubmission {
	return processors.DropSubmission{
		PlayerName:  firstField(fields, "player_name", "player"),
		AccountHash: firstField(fields, "acc_hash", "account_hash"),
		AuthKey:     firstField(fields, "auth_key"),
		ItemID:      fieldUintPtr(fields, "item_id", "id_of_item"),
		ItemName:    firstField(fields, "item_name", "item"),
		NpcName:     firstField(fields, "npc_name", "source", "npc"),
		Quantity:    fieldInt64(fields, "quantity", "amount"),
		Value:       fieldInt64(fields, "value"),
		UniqueID:    firstField(fields, "unique_id", "id", "uuid"),
		UsedAPI:     fieldBool(fields, "used_api", "downloaded"),
		KillCount:   fieldIntPtr(fields, "kill_count", "killcount", "kc"),
		ImageURL:    firstField(fields, "image_url", "webhook_url"),
		Upload:      up,
	}
}

func pbFromFields(fields map[string]string, up *processors.Upload) processors.PBSubmission {
	return processors.PBSubmission{
		PlayerName:   firstField(fields, "player_name", "player"),
		AccountHash:  firstField(fields, "acc_hash", "account_hash"),
		AuthKey:      firstField(fields, "auth_key"),
		NpcName:      firstField(fields, "npc_name", "boss_name", "npc", "source"),
		TeamSize:     firstField(fields, "team_size"),
		CurrentTime:  firstField(fields, "current_time_ms", "kill_time", "time"),
		PersonalBest: firstField(fields, "personal_best_ms", "personal_best", "best_time"),
		IsNewPB:      fieldBool(fields, "is_new_pb", "is_pb"),
		UniqueID:     firstField(fields, "unique_id", "id", "uuid"),
		ImageURL:     firstField(fields, "image_url"),
		Upload:       up,
	}
}

func caFromFields(fields map[string]string, up *processors.Upload) processors.CASubmission {
	return processors.CASubmission{
		PlayerName:    firstField(fields, "player_name", "player"),
		AccountHash:   firstField(fields, "acc_hash", "account_hash"),
		AuthKey:       firstField(fields, "auth_key"),
		TaskName:      firstField(fields, "task_name", "task"),
		Tier:          strings.ToLower(firstField(fields, "tier")),
		PointsAwarded: fieldInt(fields, "points_awarded", "points"),
		TotalPoints:   fieldInt(fields, "total_points"),
		CompletedTier: firstField(fields, "completed_tier"),
		UniqueID:      firstField(fields, "unique_id", "id", "uuid"),
		ImageURL:      firstField(fields, "image_url"),
		Upload:        up,
	}
}

func clogFromFields(fields map[string]string, up *processors.Upload) processors.ClogSubmission {
	return processors.ClogSubmission{
		PlayerName:    firstField(fields, "player_name", "player"),
		AccountHash:   firstField(fields, "acc_hash", "account_hash"),
		AuthKey:       firstField(fields, "auth_key"),
		ItemName:      firstField(fields, "item_name", "item"),
		ItemID:        fieldUintPtr(fields, "item_id"),
		SourceNpc:     firstField(fields, "source_npc", "source", "npc_name"),
		ReportedSlots: fieldInt(fields, "reported_slots", "slots"),
		KillCount:     fieldIntPtr(fields, "kill_count", "killcount", "kc"),
		UniqueID:      firstField(fields, "unique_id", "id", "uuid"),
		ImageURL:      firstField(fields, "image_url"),
		Upload:        up,
	}
}

func petFromFields(fields map[string]string, up *processors.Upload) processors.PetSubmission {
	return processors.PetSubmission{
		PlayerName:      firstField(fields, "player_name", "player"),
		AccountHash:     firstField(fields, "acc_hash", "account_hash"),
		AuthKey:         firstField(fields, "auth_key"),
		PetName:         firstField(fields, "pet_name", "name"),
		SourceNpc:       firstField(fields, "source_npc", "source", "npc_name"),
		Duplicate:       fieldBool(fields, "duplicate"),
		PreviouslyOwned: fieldBool(fields, "previously_owned"),
		Milestone:       firstField(fields, "milestone"),
		GameMessage:     firstField(fields, "game_message"),
		UniqueID:        firstField(fields, "unique_id", "id", "uuid"),
		ImageURL:        firstField(fields, "image_url"),
		Upload:          up,
	}
}

func adventureLogFromFields(fields map[string]string) processors.AdventureLogSubmission {
	return processors.AdventureLogSubmission{
		PlayerName:  firstField(fields, "player_name", "player"),
		AccountHash: firstField(fields, "acc_hash", "account_hash"),
		AuthKey:     firstField(fields, "auth_key"),
		PBLines:     fieldLines(fields, "pbs", "personal_bests"),
		PetItemIDs:  fieldUintList(fields, "pets", "pet_ids"),
	}
}
