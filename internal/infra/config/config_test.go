package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "test-secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.JWT.Algorithm != "HS256" {
		t.Fatalf("expected default algorithm HS256, got %s", cfg.JWT.Algorithm)
	}
	if cfg.JWT.ExpireMinutes != 30 {
		t.Fatalf("expected default token lifetime 30, got %d", cfg.JWT.ExpireMinutes)
	}
	if cfg.Recovery.CodeExpireMinutes != 10 {
		t.Fatalf("expected default code lifetime 10, got %d", cfg.Recovery.CodeExpireMinutes)
	}
	if cfg.Storage.Driver != StorageDriverSQLite {
		t.Fatalf("expected sqlite driver by default, got %s", cfg.Storage.Driver)
	}
	if !cfg.Storage.Serialize {
		t.Fatalf("expected serialized storage access by default")
	}
	if cfg.Recovery.Retention != time.Hour {
		t.Fatalf("expected 1h retention, got %v", cfg.Recovery.Retention)
	}
	if cfg.Recovery.AllowCustomCode || cfg.Recovery.ExposeCode {
		t.Fatalf("expected custom codes and code echo to be opt-in, got %+v", cfg.Recovery)
	}
}

func TestLoadHonoursLegacyVariableNames(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "legacy-secret")
	t.Setenv("JWT_ALGORITHM", "HS512")
	t.Setenv("JWT_EXPIRE_MINUTES", "45")
	t.Setenv("CODE_EXPIRE_MINUTES", "3")
	t.Setenv("SENDER_EMAIL", "noreply@example.com")
	t.Setenv("PASSWORD_EMAIL", "app-password")
	t.Setenv("PRODUCTION_DATABASE_URL", "postgres://u:p@db:5432/users")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.JWT.SecretKey != "legacy-secret" || cfg.JWT.Algorithm != "HS512" || cfg.JWT.ExpireMinutes != 45 {
		t.Fatalf("unexpected jwt settings: %+v", cfg.JWT)
	}
	if cfg.Recovery.CodeExpireMinutes != 3 {
		t.Fatalf("expected code lifetime 3, got %d", cfg.Recovery.CodeExpireMinutes)
	}
	if cfg.SMTP.SenderEmail != "noreply@example.com" || cfg.SMTP.Password != "app-password" {
		t.Fatalf("unexpected smtp settings: %+v", cfg.SMTP)
	}
	if cfg.Postgres.URL != "postgres://u:p@db:5432/users" {
		t.Fatalf("unexpected postgres url: %s", cfg.Postgres.URL)
	}
}

func TestLoadPrefixedVariablesWin(t *testing.T) {
	t.Setenv("USERMGR_JWT_SECRET_KEY", "prefixed")
	t.Setenv("JWT_SECRET_KEY", "plain")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.JWT.SecretKey != "prefixed" {
		t.Fatalf("expected prefixed variable to take precedence, got %s", cfg.JWT.SecretKey)
	}
}

func TestLoadEnablesRecoveryShortcutsOnRequest(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "secret")
	t.Setenv("APP_ENV", "development")
	t.Setenv("RECOVERY_ALLOW_CUSTOM_CODE", "true")
	t.Setenv("RECOVERY_EXPOSE_CODE", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !cfg.Recovery.AllowCustomCode || !cfg.Recovery.ExposeCode {
		t.Fatalf("expected both recovery switches on, got %+v", cfg.Recovery)
	}
}

func TestLoadRejectsRecoveryShortcutsInProduction(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "secret")
	t.Setenv("APP_ENV", "production")
	t.Setenv("RECOVERY_ALLOW_CUSTOM_CODE", "true")
	t.Setenv("RECOVERY_EXPOSE_CODE", "true")

	_, err := Load()
	if err == nil {
		t.Fatal("expected production config with recovery shortcuts to be rejected")
	}
	for _, fragment := range []string{"recovery.allow_custom_code", "recovery.expose_code"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected error to mention %s, got %v", fragment, err)
		}
	}
}

func TestLoadProductionDefaultsPass(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "secret")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Recovery.AllowCustomCode || cfg.Recovery.ExposeCode {
		t.Fatalf("expected recovery shortcuts off in production, got %+v", cfg.Recovery)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cfg := &AppConfig{
		JWT:      JWTSettings{SecretKey: "", Algorithm: "RS256", ExpireMinutes: 0},
		Recovery: RecoverySettings{CodeExpireMinutes: 0, Store: RecoveryStoreRedis},
		Storage:  StorageSettings{Driver: "oracle"},
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}

	for _, fragment := range []string{"jwt.secret_key", "jwt.algorithm", "jwt.expire_minutes", "recovery.code_expire_minutes", "storage.driver", "redis.enabled"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected error to mention %s, got %v", fragment, err)
		}
	}
}
