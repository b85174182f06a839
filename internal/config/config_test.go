package config

import "testing"

func TestLoadUsesCacheDefaults(t *testing.T) {
	t.Setenv("CACHE_CAPACITY", "")
	t.Setenv("CACHE_VALIDITY_HOURS", "")
	t.Setenv("CACHE_RETENTION_DAYS", "")

	cfg := Load()
	if cfg.CacheCapacity != 100 {
		t.Fatalf("expected default cache capacity 100, got %d", cfg.CacheCapacity)
	}
	if cfg.CacheValidityHours != 24 {
		t.Fatalf("expected default validity 24h, got %d", cfg.CacheValidityHours)
	}
	if cfg.CacheRetentionDays != 30 {
		t.Fatalf("expected default retention 30 days, got %d", cfg.CacheRetentionDays)
	}
}

func TestLoadParsesOverrides(t *testing.T) {
	t.Setenv("CACHE_CAPACITY", "250")
	t.Setenv("AI_RATE_PER_SECOND", "2.5")
	t.Setenv("OCR_PRIMARY_NAME", "easyocr")

	cfg := Load()
	if cfg.CacheCapacity != 250 {
		t.Fatalf("expected cache capacity 250, got %d", cfg.CacheCapacity)
	}
	if cfg.AIRatePerSecond != 2.5 {
		t.Fatalf("expected rate 2.5, got %v", cfg.AIRatePerSecond)
	}
	if cfg.OCRPrimaryName != "easyocr" {
		t.Fatalf("expected primary engine easyocr, got %q", cfg.OCRPrimaryName)
	}
}

func TestLoadIgnoresGarbageNumbers(t *testing.T) {
	t.Setenv("CACHE_CAPACITY", "lots")
	t.Setenv("AI_RATE_PER_SECOND", "fast")

	cfg := Load()
	if cfg.CacheCapacity != 100 {
		t.Fatalf("expected fallback capacity 100, got %d", cfg.CacheCapacity)
	}
	if cfg.AIRatePerSecond != 5 {
		t.Fatalf("expected fallback rate 5, got %v", cfg.AIRatePerSecond)
	}
}
