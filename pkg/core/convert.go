package core

import (
	"github.com/personaforge/charmem-go/pkg/intelligence"
	"github.com/personaforge/charmem-go/pkg/storage"
)

// Well-known metadata bag keys. Anything else a caller stores under
// metadata is carried through untouched.
const (
	metaKeyEmotions = "emotions"
	metaKeyEntities = "entities"
	metaKeyPreserve = "preserve"
	metaKeyNoDecay  = "noDecay"
	metaKeyConflict = "conflict"
)

// RecordToMemory converts a persisted record into the scoring core's
// memory value.
func RecordToMemory(rec *storage.Record) intelligence.Memory {
	importance := rec.Importance
	return intelligence.Memory{
		ID:          rec.ID,
		Content:     rec.Content,
		Category:    rec.Category,
		Importance:  &importance,
		Timestamp:   rec.CreatedAt,
		AccessCount: rec.AccessCount,
		Metadata:    MetadataFromMap(rec.Metadata),
	}
}

// RecordsToMemories converts a record list, preserving order.
func RecordsToMemories(records []*storage.Record) []intelligence.Memory {
	memories := make([]intelligence.Memory, 0, len(records))
	for _, rec := range records {
		memories = append(memories, RecordToMemory(rec))
	}
	return memories
}

// MetadataFromMap parses the open metadata bag into the typed view.
// Well-known keys become typed fields; unknown keys land in Extra so they
// survive a round trip unchanged. A nil map yields nil metadata.
func MetadataFromMap(bag map[string]interface{}) *intelligence.Metadata {
	if bag == nil {
		return nil
	}

	md := &intelligence.Metadata{}
	for key, value := range bag {
		switch key {
		case metaKeyEmotions:
			md.Emotions = toStringSlice(value)
		case metaKeyEntities:
			md.Entities = toEntities(value)
		case metaKeyPreserve:
			md.Preserve, _ = value.(bool)
		case metaKeyNoDecay:
			md.NoDecay, _ = value.(bool)
		case metaKeyConflict:
			md.Conflict = toConflictInfo(value)
		default:
			if md.Extra == nil {
				md.Extra = make(map[string]interface{})
			}
			md.Extra[key] = value
		}
	}
	return md
}

// MetadataToMap renders the typed metadata view back into the open bag,
// merging Extra keys alongside the well-known ones.
func MetadataToMap(md *intelligence.Metadata) map[string]interface{} {
	if md == nil {
		return nil
	}

	bag := make(map[string]interface{})
	for key, value := range md.Extra {
		bag[key] = value
	}
	if len(md.Emotions) > 0 {
		bag[metaKeyEmotions] = md.Emotions
	}
	if len(md.Entities) > 0 {
		entities := make([]interface{}, 0, len(md.Entities))
		for _, entity := range md.Entities {
			entities = append(entities, map[string]interface{}{
				"name":     entity.Name,
				"relation": entity.Relation,
			})
		}
		bag[metaKeyEntities] = entities
	}
	if md.Preserve {
		bag[metaKeyPreserve] = true
	}
	if md.NoDecay {
		bag[metaKeyNoDecay] = true
	}
	if md.Conflict != nil {
		bag[metaKeyConflict] = map[string]interface{}{
			"conflictGroupId":      md.Conflict.GroupID,
			"isDominant":           md.Conflict.IsDominant,
			"conflictingMemoryIds": md.Conflict.ConflictingMemoryIDs,
		}
	}
	return bag
}

// toStringSlice accepts []string or a JSON-decoded []interface{}.
func toStringSlice(value interface{}) []string {
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// toEntities accepts a JSON-decoded entity list.
func toEntities(value interface{}) []intelligence.Entity {
	items, ok := value.([]interface{})
	if !ok {
		return nil
	}
	entities := make([]intelligence.Entity, 0, len(items))
	for _, item := range items {
		fields, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		entity := intelligence.Entity{}
		entity.Name, _ = fields["name"].(string)
		entity.Relation, _ = fields["relation"].(string)
		if entity.Name != "" {
			entities = append(entities, entity)
		}
	}
	return entities
}

// toConflictInfo accepts a JSON-decoded conflict annotation.
func toConflictInfo(value interface{}) *intelligence.ConflictInfo {
	fields, ok := value.(map[string]interface{})
	if !ok {
		return nil
	}
	info := &intelligence.ConflictInfo{}
	info.GroupID, _ = fields["conflictGroupId"].(string)
	info.IsDominant, _ = fields["isDominant"].(bool)
	info.ConflictingMemoryIDs = toStringSlice(fields["conflictingMemoryIds"])
	if info.GroupID == "" {
		return nil
	}
	return info
}
