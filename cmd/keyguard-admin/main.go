package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"

	"keyguard.backend/internal/config"
	"keyguard.backend/internal/domain/entities"
	"keyguard.backend/internal/infrastructure/datasources"
	"keyguard.backend/internal/infrastructure/events"
	"keyguard.backend/internal/infrastructure/repositories"
	"keyguard.backend/internal/usecases"
	"keyguard.backend/pkg/crypto"
)

var openAdminDB = datasources.NewConnection

var openAdminSQLDB = func(db *gorm.DB) (io.Closer, error) {
	return db.DB()
}

var generateSecret = crypto.GenerateApiKey

const usage = `usage: keyguard-admin <command> [flags]

commands:
  keygen          generate a raw API key and its hash (no database)
  create-key      register a key on an owner's service
  hash-password   print the bcrypt hash of a password`

type keyCreator interface {
	CreateKey(ctx context.Context, caller uuid.UUID, input *entities.CreateKeyInput) (*entities.ApiKey, error)
}

type adminDeps struct {
	loadEnv func() error
	loadCfg func() *config.Config
	prepare func(cfg *config.Config) (keyCreator, io.Closer, error)
	now     func() time.Time
	out     io.Writer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func defaultAdminDeps() adminDeps {
	return adminDeps{
		loadEnv: func() error { return godotenv.Load() },
		loadCfg: config.Load,
		prepare: func(cfg *config.Config) (keyCreator, io.Closer, error) {
			db, err := openAdminDB(cfg.Database)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to connect db: %w", err)
			}

			sqlDB, err := openAdminSQLDB(db)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to init sql db: %w", err)
			}

			lifecycle := usecases.NewLifecycleUsecase(
				repositories.NewServiceRepository(db),
				repositories.NewApiKeyRepository(db),
				repositories.NewDepositRepository(db),
				repositories.NewUnitOfWork(db),
				events.NewAuditSink(repositories.NewKeyEventRepository(db)),
				cfg.Engine.DepositPerByte,
			)
			return lifecycle, sqlDB, nil
		},
		now: time.Now,
		out: os.Stdout,
	}
}

func (d adminDeps) withDefaults() adminDeps {
	def := defaultAdminDeps()
	if d.loadEnv == nil {
		d.loadEnv = def.loadEnv
	}
	if d.loadCfg == nil {
		d.loadCfg = def.loadCfg
	}
	if d.prepare == nil {
		d.prepare = def.prepare
	}
	if d.now == nil {
		d.now = def.now
	}
	if d.out == nil {
		d.out = def.out
	}
	return d
}

func runAdmin(args []string, deps adminDeps) error {
	deps = deps.withDefaults()
	if len(args) == 0 {
		return errors.New(usage)
	}

	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], deps)
	case "create-key":
		return runCreateKey(args[1:], deps)
	case "hash-password":
		return runHashPassword(args[1:], deps)
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

func runKeygen(args []string, deps adminDeps) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret, err := generateSecret()
	if err != nil {
		return fmt.Errorf("failed to generate api key: %w", err)
	}

	_, _ = fmt.Fprintln(deps.out, "Generated API key")
	_, _ = fmt.Fprintf(deps.out, "API_KEY=%s\n", secret)
	_, _ = fmt.Fprintf(deps.out, "KEY_HASH=%s\n", entities.HashSecret(secret).String())
	return nil
}

func parseOwnerID(ownerID string) (uuid.UUID, error) {
	if ownerID == "" {
		return uuid.Nil, fmt.Errorf("--owner is required")
	}
	return uuid.Parse(ownerID)
}

func resolveLabel(input string, now time.Time) string {
	if input != "" {
		return input
	}
	return fmt.Sprintf("admin-%s", now.Format("20060102-150405"))
}

func runCreateKey(args []string, deps adminDeps) error {
	fs := flag.NewFlagSet("create-key", flag.ContinueOnError)
	ownerFlag := fs.String("owner", "", "owner account UUID (required)")
	labelFlag := fs.String("label", "", "key label, at most 32 bytes (optional)")
	permsFlag := fs.String("perms", "READ", "permissions, e.g. READ,WRITE or ALL")
	rateLimitFlag := fs.Uint("rate-limit", 0, "requests per window (0 uses the service default)")
	expiresInFlag := fs.Duration("expires-in", 0, "key lifetime (0 never expires)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	owner, err := parseOwnerID(*ownerFlag)
	if err != nil {
		return err
	}
	perms, err := parsePerms(*permsFlag)
	if err != nil {
		return err
	}
	if *expiresInFlag < 0 {
		return fmt.Errorf("--expires-in must not be negative")
	}

	if err := deps.loadEnv(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}

	cfg := deps.loadCfg()
	creator, closer, err := deps.prepare(cfg)
	if err != nil {
		return err
	}
	if closer == nil {
		closer = nopCloser{}
	}
	defer closer.Close()

	secret, err := generateSecret()
	if err != nil {
		return fmt.Errorf("failed to generate api key: %w", err)
	}

	now := deps.now()
	input := &entities.CreateKeyInput{
		KeyHash:     entities.HashSecret(secret),
		Label:       resolveLabel(*labelFlag, now),
		Permissions: perms,
	}
	if *rateLimitFlag > 0 {
		input.RateLimit = null.Uint32From(uint32(*rateLimitFlag))
	}
	if *expiresInFlag > 0 {
		input.ExpiresAt = null.Int64From(now.Add(*expiresInFlag).Unix())
	}

	key, err := creator.CreateKey(context.Background(), owner, input)
	if err != nil {
		return fmt.Errorf("failed creating api key: %w", err)
	}

	_, _ = fmt.Fprintln(deps.out, "Created API key and stored its hash in DB")
	_, _ = fmt.Fprintf(deps.out, "service_id=%s\n", key.ServiceID.String())
	_, _ = fmt.Fprintf(deps.out, "key_id=%s\n", key.ID.String())
	_, _ = fmt.Fprintf(deps.out, "label=%s\n", key.Label)
	_, _ = fmt.Fprintf(deps.out, "permissions=%s\n", key.Permissions.String())
	_, _ = fmt.Fprintf(deps.out, "KEY_HASH=%s\n", key.KeyHash.String())
	_, _ = fmt.Fprintf(deps.out, "API_KEY=%s\n", secret)
	return nil
}

func parsePerms(s string) (entities.Permission, error) {
	s = strings.TrimSpace(s)
	if strings.EqualFold(s, "ALL") {
		return entities.PermissionAll, nil
	}
	perms, err := entities.ParsePermissionString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid --perms %q: %w", s, err)
	}
	return perms, nil
}

func runHashPassword(args []string, deps adminDeps) error {
	fs := flag.NewFlagSet("hash-password", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("hash-password takes exactly one password argument")
	}

	hash, err := crypto.HashPassword(fs.Arg(0))
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	_, _ = fmt.Fprintf(deps.out, "Bcrypt Hash: %s\n", hash)
	return nil
}

func main() {
	if err := runAdmin(os.Args[1:], defaultAdminDeps()); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
