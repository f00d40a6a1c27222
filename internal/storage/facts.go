package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode"

	"crossbridge/internal/codepath"
	cberrors "crossbridge/internal/errors"
	"crossbridge/internal/impact"
)

// timeLayout is fixed width so stored timestamps compare correctly as text
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

// FactRepository stores impact facts in the test_case, page_object and
// test_page_mapping tables. It implements impact.FactStore.
type FactRepository struct {
	db *DB
}

// NewFactRepository creates a new fact repository
func NewFactRepository(db *DB) *FactRepository {
	return &FactRepository{db: db}
}

var _ impact.FactStore = (*FactRepository)(nil)

// Upsert stores facts in one transaction. A fact already present for its
// (test, element, source) keeps the higher confidence and later timestamp.
func (r *FactRepository) Upsert(ctx context.Context, facts ...impact.Fact) error {
	for _, f := range facts {
		if err := f.Validate(); err != nil {
			return err
		}
	}

	upsert := r.db.q(`
		INSERT INTO test_page_mapping (test_case_id, page_object_id, source, confidence, observed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (test_case_id, page_object_id, source) DO UPDATE SET
			confidence = ` + r.db.dialect.greatest("test_page_mapping.confidence", "excluded.confidence") + `,
			observed_at = ` + r.db.dialect.greatest("test_page_mapping.observed_at", "excluded.observed_at"))

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		testIDs := make(map[string]int64)
		elementIDs := make(map[string]int64)

		for _, f := range facts {
			testCaseID, ok := testIDs[f.TestID]
			if !ok {
				id, err := r.ensureTestCase(ctx, tx, f.TestID)
				if err != nil {
					return err
				}
				testIDs[f.TestID], testCaseID = id, id
			}
			pageObjectID, ok := elementIDs[f.Element]
			if !ok {
				id, err := r.ensurePageObject(ctx, tx, f.Element)
				if err != nil {
					return err
				}
				elementIDs[f.Element], pageObjectID = id, id
			}

			if _, err := tx.ExecContext(ctx, upsert,
				testCaseID, pageObjectID, string(f.Source), f.Confidence, formatTime(f.ObservedAt),
			); err != nil {
				return fmt.Errorf("upsert fact (%s, %s, %s): %w", f.TestID, f.Element, f.Source, err)
			}
		}
		return nil
	})
	if err != nil {
		return cberrors.NewStorageError("failed to store impact facts", err)
	}
	return nil
}

func (r *FactRepository) ensureTestCase(ctx context.Context, tx *sql.Tx, testID string) (int64, error) {
	ref := codepath.Parse(testID)
	filePath := ""
	if ref.HasSymbol() {
		filePath = ref.FilePath
	}

	var id int64
	err := tx.QueryRowContext(ctx, r.db.q(`
		INSERT INTO test_case (test_id, file_path, class_name, method_name)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (test_id) DO UPDATE SET test_id = excluded.test_id
		RETURNING id`),
		testID, filePath, ref.ClassName, ref.MethodName,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensure test case %s: %w", testID, err)
	}
	return id, nil
}

func (r *FactRepository) ensurePageObject(ctx context.Context, tx *sql.Tx, element string) (int64, error) {
	filePath, pkg := "", ""
	if strings.Contains(element, codepath.Separator) {
		filePath = codepath.Parse(element).FilePath
	} else {
		pkg = packageOf(element)
	}

	var id int64
	err := tx.QueryRowContext(ctx, r.db.q(`
		INSERT INTO page_object (name, file_path, package)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET name = excluded.name
		RETURNING id`),
		element, filePath, pkg,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("ensure page object %s: %w", element, err)
	}
	return id, nil
}

// packageOf returns the package prefix of a qualified name such as
// "com.example.pages.LoginPage", or "" for anything else
func packageOf(name string) string {
	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 || strings.ContainsAny(name, `/\`) {
		return ""
	}
	for _, r := range name {
		if !unicode.IsLower(r) {
			return ""
		}
		break
	}
	return name[:dot]
}

// Facts returns every stored fact in insertion order
func (r *FactRepository) Facts(ctx context.Context) ([]impact.Fact, error) {
	rows, err := r.db.conn.QueryContext(ctx, `
		SELECT tc.test_id, po.name, m.source, m.confidence, m.observed_at
		FROM test_page_mapping m
		JOIN test_case tc ON tc.id = m.test_case_id
		JOIN page_object po ON po.id = m.page_object_id
		ORDER BY m.id`)
	if err != nil {
		return nil, cberrors.NewStorageError("failed to query impact facts", err)
	}
	defer func() { _ = rows.Close() }()

	facts := make([]impact.Fact, 0)
	for rows.Next() {
		var f impact.Fact
		var source, observedAt string
		if err := rows.Scan(&f.TestID, &f.Element, &source, &f.Confidence, &observedAt); err != nil {
			return nil, cberrors.NewStorageError("failed to scan impact fact", err)
		}
		f.Source = impact.Source(source)
		if f.ObservedAt, err = parseTime(observedAt); err != nil {
			return nil, cberrors.NewDeserializationError(r.db.location+"#test_page_mapping", err)
		}
		facts = append(facts, f)
	}
	if err := rows.Err(); err != nil {
		return nil, cberrors.NewStorageError("failed to read impact facts", err)
	}
	return facts, nil
}

// PageObject is a row of the page_object table
type PageObject struct {
	ID       int64
	Name     string
	FilePath string
	Package  string
}

// PageObjects lists the known elements ordered by name
func (r *FactRepository) PageObjects(ctx context.Context) ([]PageObject, error) {
	rows, err := r.db.conn.QueryContext(ctx, `SELECT id, name, file_path, package FROM page_object ORDER BY name`)
	if err != nil {
		return nil, cberrors.NewStorageError("failed to query page objects", err)
	}
	defer func() { _ = rows.Close() }()

	var out []PageObject
	for rows.Next() {
		var po PageObject
		if err := rows.Scan(&po.ID, &po.Name, &po.FilePath, &po.Package); err != nil {
			return nil, cberrors.NewStorageError("failed to scan page object", err)
		}
		out = append(out, po)
	}
	return out, rows.Err()
}
