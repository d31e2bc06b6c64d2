package corpus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/dshills/skillindex/internal/storage"
	"github.com/dshills/skillindex/pkg/types"
)

// SkillTable is the registry table read by the SQLite provider
const SkillTable = "Skill"

// SQLite reads documents from the Skill table of a registry database.
// Columns other than id are optional.
type SQLite struct {
	Path string
}

// Load implements Provider
func (s *SQLite) Load(ctx context.Context) ([]types.Document, error) {
	if _, err := os.Stat(s.Path); err != nil {
		return nil, fmt.Errorf("registry database %s: %w", s.Path, err)
	}

	db, err := sql.Open(storage.DriverName, s.Path)
	if err != nil {
		return nil, fmt.Errorf("open registry database: %w", err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, "SELECT * FROM "+SkillTable)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", SkillTable, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var docs []types.Document
	for rows.Next() {
		values := make([]sql.NullString, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", SkillTable, err)
		}

		row := make(map[string]string, len(columns))
		for i, col := range columns {
			if values[i].Valid {
				row[col] = values[i].String
			}
		}
		docs = append(docs, skillDocument(row))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return docs, nil
}

func skillDocument(row map[string]string) types.Document {
	doc := types.Document{
		ID:                   row["id"],
		Name:                 row["name"],
		NameSecondary:        row["name_zh"],
		Description:          row["description"],
		DescriptionSecondary: row["description_zh"],
		Tags:                 types.ParseTags(row["tags"]),
		Path:                 row["skill_path"],
		Owner:                row["owner"],
		Contact:              row["contact"],
		Source:               row["source"],
		RequiresInternet:     parseBool(row["requires_internet"]),
	}

	// registry rows carry no excerpt, the translated description stands in
	doc.Excerpt = doc.DescriptionSecondary
	if doc.Excerpt == "" {
		doc.Excerpt = doc.Description
	}

	if v, err := strconv.ParseFloat(row["weight"], 64); err == nil {
		doc.Weight = v
	}
	if v, err := strconv.ParseInt(row["installs"], 10, 64); err == nil {
		doc.Installs = v
	}
	if v, err := strconv.ParseInt(row["stars"], 10, 64); err == nil {
		doc.Stars = v
	}
	if v, err := strconv.ParseFloat(row["security_score"], 64); err == nil {
		doc.SecurityScore = &v
	}
	if data := strings.TrimSpace(row["security_data"]); data != "" && json.Valid([]byte(data)) {
		doc.SecurityData = json.RawMessage(data)
	}

	return doc
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	return err == nil && b
}
