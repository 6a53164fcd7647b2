package logfeed

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"web-app-firewall-console/internal/core"
)

const (
	FormatJSON = "json"
	FormatBSON = "bson"
)

// bsonLog carries the log id as a real ObjectID so the dump can be fed to
// mongorestore. Ids that are not ObjectID hex are left out.
type bsonLog struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	core.AttackLog `bson:",inline"`
}

// Export writes the fetched page (not the filtered view) in the given
// format: an indented JSON array, or concatenated BSON documents.
func (c *Controller) Export(w io.Writer, format string) error {
	logs := c.Logs()

	switch strings.ToLower(format) {
	case "", FormatJSON:
		out, err := json.MarshalIndent(logs, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode logs: %w", err)
		}
		_, err = w.Write(append(out, '\n'))
		return err

	case FormatBSON:
		for i, l := range logs {
			doc := bsonLog{AttackLog: l}
			if oid, err := primitive.ObjectIDFromHex(l.ID); err == nil {
				doc.ID = oid
			}
			raw, err := bson.Marshal(doc)
			if err != nil {
				return fmt.Errorf("failed to encode log %s: %w", l.Key(i), err)
			}
			if _, err := w.Write(raw); err != nil {
				return err
			}
		}
		return nil

	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// ExportFilename names an export taken at now, e.g.
// waf_logs_2024-05-01T10:00:00.000Z.json.
func ExportFilename(now time.Time, format string) string {
	ext := strings.ToLower(format)
	if ext == "" {
		ext = FormatJSON
	}
	return "waf_logs_" + now.UTC().Format("2006-01-02T15:04:05.000Z07:00") + "." + ext
}
