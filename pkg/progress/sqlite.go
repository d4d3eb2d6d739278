package progress

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps progress in a SQLite database, one row per record.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("progress path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if path == ":memory:" {
		dsn = path
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One connection keeps ":memory:" databases coherent and serializes writes.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) ScenarioProgress(lessonID, scenarioID string) (*ScenarioProgress, error) {
	var completed, extracted string
	var p ScenarioProgress
	err := s.db.QueryRow(
		`SELECT completed_goals, current_goal_index, extracted_info
		 FROM scenario_progress WHERE lesson_id = ? AND scenario_id = ?`,
		lessonID, scenarioID,
	).Scan(&completed, &p.CurrentGoalIndex, &extracted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("scenario %s/%s: %w", lessonID, scenarioID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query scenario progress: %w", err)
	}
	if err := json.Unmarshal([]byte(completed), &p.CompletedGoals); err != nil {
		return nil, fmt.Errorf("decode completed goals: %w", err)
	}
	if err := json.Unmarshal([]byte(extracted), &p.ExtractedInfo); err != nil {
		return nil, fmt.Errorf("decode extracted info: %w", err)
	}
	return &p, nil
}

func (s *SQLiteStore) PutScenarioProgress(lessonID, scenarioID string, p *ScenarioProgress) error {
	completed, err := json.Marshal(nonNilInts(p.CompletedGoals))
	if err != nil {
		return fmt.Errorf("encode completed goals: %w", err)
	}
	info := p.ExtractedInfo
	if info == nil {
		info = map[string]*string{}
	}
	extracted, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode extracted info: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO scenario_progress (lesson_id, scenario_id, completed_goals, current_goal_index, extracted_info)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (lesson_id, scenario_id) DO UPDATE SET
		   completed_goals = excluded.completed_goals,
		   current_goal_index = excluded.current_goal_index,
		   extracted_info = excluded.extracted_info`,
		lessonID, scenarioID, string(completed), p.CurrentGoalIndex, string(extracted),
	)
	if err != nil {
		return fmt.Errorf("put scenario progress: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ClearScenarioProgress(lessonID, scenarioID string) error {
	if _, err := s.db.Exec(`DELETE FROM scenario_progress WHERE lesson_id = ? AND scenario_id = ?`, lessonID, scenarioID); err != nil {
		return fmt.Errorf("clear scenario progress: %w", err)
	}
	return nil
}

func (s *SQLiteStore) MergeGlobalVariables(values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()
	for name, value := range values {
		if _, err := tx.Exec(
			`INSERT INTO user_variables (name, value) VALUES (?, ?)
			 ON CONFLICT (name) DO UPDATE SET value = excluded.value`,
			name, value,
		); err != nil {
			return fmt.Errorf("merge variable %s: %w", name, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit merge: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GlobalVariables() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT name, value FROM user_variables`)
	if err != nil {
		return nil, fmt.Errorf("query variables: %w", err)
	}
	defer rows.Close()
	out := map[string]string{}
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("scan variable: %w", err)
		}
		out[name] = value
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkLessonCompleted(lessonID string) error {
	if _, err := s.db.Exec(`INSERT OR IGNORE INTO completed_lessons (lesson_id) VALUES (?)`, lessonID); err != nil {
		return fmt.Errorf("mark lesson completed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CompletedLessons() (map[string]bool, error) {
	ids, err := s.completedInOrder()
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

func (s *SQLiteStore) completedInOrder() ([]string, error) {
	rows, err := s.db.Query(`SELECT lesson_id FROM completed_lessons ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("query completed lessons: %w", err)
	}
	defer rows.Close()
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan completed lesson: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) SlidePosition(lessonID string) (int, error) {
	var idx int
	err := s.db.QueryRow(`SELECT slide_index FROM slide_positions WHERE lesson_id = ?`, lessonID).Scan(&idx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query slide position: %w", err)
	}
	return idx, nil
}

func (s *SQLiteStore) PutSlidePosition(lessonID string, index int) error {
	_, err := s.db.Exec(
		`INSERT INTO slide_positions (lesson_id, slide_index) VALUES (?, ?)
		 ON CONFLICT (lesson_id) DO UPDATE SET slide_index = excluded.slide_index`,
		lessonID, index,
	)
	if err != nil {
		return fmt.Errorf("put slide position: %w", err)
	}
	return nil
}

// Snapshot assembles the full record from every table.
func (s *SQLiteStore) Snapshot() (*Record, error) {
	rec := NewRecord()
	var err error
	if rec.CompletedLessons, err = s.completedInOrder(); err != nil {
		return nil, err
	}
	if rec.UserData, err = s.GlobalVariables(); err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT lesson_id, slide_index FROM slide_positions`)
	if err != nil {
		return nil, fmt.Errorf("query slide positions: %w", err)
	}
	for rows.Next() {
		var id string
		var idx int
		if err := rows.Scan(&id, &idx); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan slide position: %w", err)
		}
		rec.SlidePositions[id] = idx
	}
	rows.Close()

	rows, err = s.db.Query(`SELECT lesson_id, scenario_id FROM scenario_progress`)
	if err != nil {
		return nil, fmt.Errorf("query scenarios: %w", err)
	}
	var keys [][2]string
	for rows.Next() {
		var l, sc string
		if err := rows.Scan(&l, &sc); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan scenario key: %w", err)
		}
		keys = append(keys, [2]string{l, sc})
	}
	rows.Close()
	for _, k := range keys {
		p, err := s.ScenarioProgress(k[0], k[1])
		if err != nil {
			return nil, err
		}
		rec.putScenario(k[0], k[1], p)
	}
	return rec, nil
}

func (s *SQLiteStore) Reset() error {
	for _, table := range []string{"scenario_progress", "user_variables", "completed_lessons", "slide_positions"} {
		if _, err := s.db.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}

var _ Store = (*SQLiteStore)(nil)
