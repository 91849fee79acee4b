package engine

import (
	"github.com/iudanet/docsync/internal/changelog"
	"github.com/iudanet/docsync/internal/models"
	"github.com/iudanet/docsync/pkg/api"
)

// Conversions between the wire DTOs in pkg/api and the internal model.
// The wire layer never leaks into the snapshot or the change log.

func documentFromAPI(doc *api.Document) *models.Document {
	if doc == nil {
		return nil
	}
	fields := make(map[string]any, len(doc.Fields))
	for k, v := range doc.Fields {
		fields[k] = v
	}
	return &models.Document{
		ID:        doc.ID,
		Rev:       doc.Rev,
		Deleted:   doc.Deleted,
		UpdatedAt: doc.UpdatedAt,
		Fields:    fields,
	}
}

func documentToAPI(doc *models.Document) *api.Document {
	if doc == nil {
		return nil
	}
	fields := make(map[string]any, len(doc.Fields))
	for k, v := range doc.Fields {
		fields[k] = v
	}
	return &api.Document{
		ID:        doc.ID,
		Rev:       doc.Rev,
		Deleted:   doc.Deleted,
		UpdatedAt: doc.UpdatedAt,
		Fields:    fields,
	}
}

func checkpointFromAPI(cp api.Checkpoint) models.Checkpoint {
	sequences := make(map[string]int64, len(cp.Sequences))
	for collection, seq := range cp.Sequences {
		sequences[collection] = seq
	}
	return models.Checkpoint{Sequences: sequences, UpdatedAt: cp.UpdatedAt}
}

func checkpointToAPI(cp models.Checkpoint) api.Checkpoint {
	sequences := make(map[string]int64, len(cp.Sequences))
	for collection, seq := range cp.Sequences {
		sequences[collection] = seq
	}
	return api.Checkpoint{Sequences: sequences, UpdatedAt: cp.UpdatedAt}
}

// entryToChange converts a change log entry to its wire form
func entryToChange(entry changelog.Entry) api.Change {
	return api.Change{
		Op:         string(entry.Change.Op),
		DocumentID: entry.Change.DocumentID,
		Document:   documentToAPI(entry.Change.Document),
		Seq:        entry.Seq,
		Timestamp:  entry.Change.Timestamp,
	}
}

// eventToChange converts an applied change event to its wire form
func eventToChange(event models.ChangeEvent) api.Change {
	return api.Change{
		Op:         string(event.Op),
		DocumentID: event.DocumentID,
		Document:   documentToAPI(event.Document),
		Seq:        event.Seq,
		Timestamp:  event.Timestamp,
	}
}
