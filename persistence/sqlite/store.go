package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/mohitkumar/convoflow/model"
	"github.com/mohitkumar/convoflow/persistence"
	"github.com/mohitkumar/convoflow/util"
)

var _ persistence.FlowStore = new(Store)
var _ persistence.ContextStore = new(Store)

// Store keeps flow documents and flow contexts in SQLite. The caller opens
// the *sql.DB with the "sqlite" driver from modernc.org/sqlite.
type Store struct {
	db        *sql.DB
	docEncDec *util.JsonEncDec[model.FlowDocument]
	ctxEncDec *util.JsonEncDec[model.FlowContext]
}

func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{
		db:        db,
		docEncDec: util.NewJsonEncoderDecoder[model.FlowDocument](),
		ctxEncDec: util.NewJsonEncoderDecoder[model.FlowContext](),
	}
	if err := s.initSchema(); err != nil {
		return nil, err
	}
	return s, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS flows (
		organization_id INTEGER NOT NULL,
		uuid TEXT NOT NULL,
		status TEXT NOT NULL,
		flow_id INTEGER NOT NULL,
		document BLOB NOT NULL,
		PRIMARY KEY (organization_id, uuid, status)
	);`,
	`CREATE TABLE IF NOT EXISTS flow_contexts (
		id TEXT PRIMARY KEY,
		organization_id INTEGER NOT NULL,
		contact_id INTEGER NOT NULL,
		state TEXT NOT NULL,
		version INTEGER NOT NULL,
		data BLOB NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS flow_contexts_contact ON flow_contexts (organization_id, contact_id, state);`,
}

func (s *Store) initSchema() error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) SaveFlow(ctx context.Context, doc *model.FlowDocument) error {
	data, err := s.docEncDec.Encode(*doc)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO flows (organization_id, uuid, status, flow_id, document)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (organization_id, uuid, status) DO UPDATE SET flow_id = excluded.flow_id, document = excluded.document`,
		doc.OrganizationId, doc.Uuid, string(doc.Status), doc.Id, data,
	)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	return nil
}

func (s *Store) GetFlow(ctx context.Context, orgId int64, uuid string, status model.FlowStatus) (*model.FlowDocument, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT document FROM flows WHERE organization_id = ? AND uuid = ? AND status = ?`,
		orgId, uuid, string(status),
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrNotFound
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return s.docEncDec.Decode(data)
}

func (s *Store) ListFlows(ctx context.Context, orgId int64) ([]*model.FlowDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT document FROM flows WHERE organization_id = ? ORDER BY flow_id, status`,
		orgId,
	)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	defer rows.Close()
	var out []*model.FlowDocument
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		doc, err := s.docEncDec.Decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *Store) SaveContext(ctx context.Context, fc *model.FlowContext) error {
	next := *fc
	next.Version++
	data, err := s.ctxEncDec.Encode(next)
	if err != nil {
		return err
	}
	if fc.Version == 0 {
		// a live context is only created while the contact holds no other live one
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO flow_contexts (id, organization_id, contact_id, state, version, data)
			SELECT ?, ?, ?, ?, ?, ?
			WHERE ? = 0 OR NOT EXISTS (
				SELECT 1 FROM flow_contexts
				WHERE organization_id = ? AND contact_id = ? AND state IN (?, ?, ?, ?)
			)`,
			fc.Id, fc.OrganizationId, fc.ContactId, string(next.State), next.Version, data,
			boolInt(next.State.IsLive()), fc.OrganizationId, fc.ContactId,
			string(model.ACTIVE), string(model.WAITING_MESSAGE), string(model.WAITING_WEBHOOK), string(model.WAITING_TIME),
		)
		if err != nil {
			if _, getErr := s.GetContext(ctx, fc.Id); getErr == nil {
				return persistence.ErrVersionConflict
			}
			return persistence.StorageLayerError{Message: err.Error()}
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return persistence.ErrVersionConflict
		}
		fc.Version = next.Version
		return nil
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE flow_contexts SET state = ?, version = ?, data = ?
		WHERE id = ? AND version = ?`,
		string(next.State), next.Version, data, fc.Id, fc.Version,
	)
	if err != nil {
		return persistence.StorageLayerError{Message: err.Error()}
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := s.GetContext(ctx, fc.Id); err != nil {
			return err
		}
		return persistence.ErrVersionConflict
	}
	fc.Version = next.Version
	return nil
}

func (s *Store) GetContext(ctx context.Context, id string) (*model.FlowContext, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM flow_contexts WHERE id = ?`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrNotFound
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return s.ctxEncDec.Decode(data)
}

func (s *Store) GetLiveContext(ctx context.Context, orgId int64, contactId int64) (*model.FlowContext, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT data FROM flow_contexts
		WHERE organization_id = ? AND contact_id = ? AND state IN (?, ?, ?, ?)
		ORDER BY rowid DESC LIMIT 1`,
		orgId, contactId,
		string(model.ACTIVE), string(model.WAITING_MESSAGE), string(model.WAITING_WEBHOOK), string(model.WAITING_TIME),
	).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrNotFound
		}
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	return s.ctxEncDec.Decode(data)
}

func (s *Store) ListContexts(ctx context.Context, orgId int64, contactId int64) ([]*model.FlowContext, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT data FROM flow_contexts WHERE organization_id = ? AND contact_id = ? ORDER BY rowid`,
		orgId, contactId,
	)
	if err != nil {
		return nil, persistence.StorageLayerError{Message: err.Error()}
	}
	defer rows.Close()
	var out []*model.FlowContext
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		fc, err := s.ctxEncDec.Decode(data)
		if err != nil {
			return nil, err
		}
		out = append(out, fc)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
