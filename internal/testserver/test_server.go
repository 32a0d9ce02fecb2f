package testserver

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/knitgrid/tally/internal/broadcast"
	"github.com/knitgrid/tally/internal/domain/counter"
	"github.com/knitgrid/tally/internal/domain/history"
	"github.com/knitgrid/tally/internal/domain/link"
	"github.com/knitgrid/tally/internal/domain/project"
	"github.com/knitgrid/tally/internal/sqlite"
	"github.com/knitgrid/tally/internal/transport"
)

type TestServer struct {
	Server   *httptest.Server
	DB       *sqlite.DB
	Hub      *broadcast.Hub
	Token    string
	TenantID string
}

func New(t *testing.T, token, tenantID string) *TestServer {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := sqlite.New(dsn)
	require.NoError(t, err)
	require.NoError(t, db.RunMigrations())

	projectRepo := sqlite.NewProjectRepository(db)
	counterRepo := sqlite.NewCounterRepository(db)
	linkRepo := sqlite.NewLinkRepository(db)
	historyRepo := sqlite.NewHistoryRepository(db)
	uow := sqlite.NewUnitOfWork(db)

	projectSvc := project.NewService(projectRepo, nil)
	hub := broadcast.NewHub(projectSvc, 64, nil)
	counterSvc := counter.NewService(counterRepo, linkRepo, projectRepo, uow, hub, nil)
	linkSvc := link.NewService(linkRepo, counterRepo, nil)
	historySvc := history.NewService(historyRepo, counterSvc, nil)

	resolver := &apiKeyResolver{db: db}
	server := httptest.NewServer(transport.NewServer(transport.Services{
		Projects: projectSvc,
		Counters: counterSvc,
		Links:    linkSvc,
		History:  historySvc,
		Hub:      hub,
	}, transport.AuthMiddleware(resolver), nil))

	ts := &TestServer{
		Server:   server,
		DB:       db,
		Hub:      hub,
		Token:    token,
		TenantID: tenantID,
	}

	require.NoError(t, ts.AddAPIKey(token, tenantID))

	t.Cleanup(func() {
		server.Close()
		hub.Close()
		_ = db.Close()
	})

	return ts
}

func (ts *TestServer) AddAPIKey(token, tenantID string) error {
	hash := hashToken(token)
	_, err := ts.DB.Exec(
		`INSERT INTO api_keys (key_hash, tenant_id, created_at) VALUES (?, ?, ?)`,
		hash, tenantID, time.Now(),
	)
	return err
}

type apiKeyResolver struct {
	db *sqlite.DB
}

func (r *apiKeyResolver) ResolveTenant(ctx context.Context, token string) (string, error) {
	hash := hashToken(token)
	var tenantID string
	err := r.db.QueryRowContext(ctx, `SELECT tenant_id FROM api_keys WHERE key_hash = ?`, hash).Scan(&tenantID)
	if err != nil || tenantID == "" {
		return "", transport.ErrUnauthorized
	}
	return tenantID, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
