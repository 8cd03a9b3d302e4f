package env_mode

import "testing"

func TestParseEnv(t *testing.T) {
	tests := map[string]ENV_MODE{
		"":             DevMode,
		"dev":          DevMode,
		" Production ": ProMode,
		"prod":         ProMode,
		"testing":      TestMode,
		"staging":      DevMode,
	}
	for in, want := range tests {
		if got := ParseEnv(in); got != want {
			t.Errorf("ParseEnv(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestSetModeOverridesCachedMode(t *testing.T) {
	t.Setenv(ENV_MODE_KEY, "")
	previous := Mode()
	t.Cleanup(func() { SetMode(previous) })

	SetMode(ProMode)
	if Mode() != ProMode {
		t.Fatalf("Mode() = %s after SetMode(%s)", Mode(), ProMode)
	}
	if IsDev() {
		t.Fatal("IsDev should be false in production mode")
	}

	SetMode(DevMode)
	if !IsDev() {
		t.Fatal("IsDev should be true in development mode")
	}
}
