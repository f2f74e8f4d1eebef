package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, ":8080", cfg.GRPCAddr)
	assert.Equal(t, "portfolyze-auth", cfg.JWTIssuer)
	assert.Equal(t, "portfolyze-api", cfg.JWTAudience)
	assert.Equal(t, 10, cfg.BcryptCost)
	assert.Equal(t, "https://app.smslocal.in/api/smsapi", cfg.SMSLocalBaseURL)
	assert.Equal(t, 5*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 5, cfg.OTPMaxAttempts)
	assert.Equal(t, 5, cfg.OTPSendLimit)
	assert.Equal(t, time.Hour, cfg.OTPSendWindow)
	assert.Equal(t, 2*time.Minute, cfg.ChallengeTTL)
	assert.Equal(t, "IN", cfg.PhoneDefaultRegion)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.OTPReturnToClient)
	assert.False(t, cfg.DevOTP())
	assert.Nil(t, cfg.TelemetryKafkaBrokersList())
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	t.Setenv("HTTP_ADDR", ":9091")
	t.Setenv("JWT_ISSUER", "custom-issuer")
	t.Setenv("BCRYPT_COST", "14")
	t.Setenv("OTP_TTL", "90s")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://portfolyze.in,http://localhost:5173")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9091", cfg.HTTPAddr)
	assert.Equal(t, "custom-issuer", cfg.JWTIssuer)
	assert.Equal(t, 14, cfg.BcryptCost)
	assert.Equal(t, 90*time.Second, cfg.OTPTTL)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.TelemetryKafkaBrokersList())
	assert.Equal(t, []string{"https://portfolyze.in", "http://localhost:5173"}, cfg.AllowedOrigins())
}

func TestLoad_BcryptCostRange(t *testing.T) {
	testCases := []struct {
		name  string
		value string
		want  int
		err   bool
	}{
		{"valid min", "4", 4, false},
		{"valid max", "31", 31, false},
		{"too low", "3", 0, true},
		{"too high", "32", 0, true},
		{"zero", "0", 10, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			os.Clearenv()
			t.Setenv("BCRYPT_COST", tc.value)

			cfg, err := Load()
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, cfg.BcryptCost)
		})
	}
}

func TestLoad_OTPReturnToClientProduction(t *testing.T) {
	os.Clearenv()
	t.Setenv("OTP_RETURN_TO_CLIENT", "true")
	t.Setenv("APP_ENV", "production")

	cfg, err := Load()
	require.EqualError(t, err, "config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	assert.Nil(t, cfg)
}

func TestLoad_OTPReturnToClientDevelopment(t *testing.T) {
	os.Clearenv()
	t.Setenv("OTP_RETURN_TO_CLIENT", "true")
	t.Setenv("APP_ENV", "development")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.DevOTP())
}

func TestLoad_RejectsNonPositiveLimits(t *testing.T) {
	for key, value := range map[string]string{
		"OTP_TTL":          "0s",
		"OTP_MAX_ATTEMPTS": "0",
		"OTP_SEND_LIMIT":   "0",
		"CHALLENGE_TTL":    "-1m",
	} {
		t.Run(key, func(t *testing.T) {
			os.Clearenv()
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestTTLFallbacks(t *testing.T) {
	for _, tc := range []struct {
		access, refresh string
		wantA, wantR    time.Duration
	}{
		{"30m", "336h", 30 * time.Minute, 336 * time.Hour},
		{"invalid", "invalid", 15 * time.Minute, 720 * time.Hour},
		{"0", "0", 15 * time.Minute, 720 * time.Hour},
		{"-5m", "-1h", 15 * time.Minute, 720 * time.Hour},
	} {
		cfg := &Config{JWTAccessTTL: tc.access, JWTRefreshTTL: tc.refresh}
		assert.Equal(t, tc.wantA, cfg.AccessTTL(), tc.access)
		assert.Equal(t, tc.wantR, cfg.RefreshTTL(), tc.refresh)
	}
}

func TestLoadClient(t *testing.T) {
	os.Clearenv()
	cfg, err := LoadClient("/tmp/portfolyze/session.json")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8081", cfg.ServerURL)
	assert.Equal(t, "/tmp/portfolyze/session.json", cfg.SessionFile)
	assert.Equal(t, "IN", cfg.PhoneDefaultRegion)

	t.Setenv("PORTFOLYZE_URL", "https://auth.portfolyze.in/")
	t.Setenv("PORTFOLYZE_SESSION_FILE", "")
	cfg, err = LoadClient("/tmp/ignored")
	require.NoError(t, err)
	assert.Equal(t, "https://auth.portfolyze.in", cfg.ServerURL)
}
