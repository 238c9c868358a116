package config

import (
	"bytes"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/secrets"
)

type ConfigSuite struct {
	suite.Suite
	masterKey string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) SetupTest() {
	s.masterKey = base64.RawURLEncoding.EncodeToString(bytes.Repeat([]byte{0x42}, 32))
}

func (s *ConfigSuite) TestFromEnvDefaults() {
	s.T().Setenv("KEYSTONE_MASTER_KEY", s.masterKey)

	cfg, err := FromEnv()
	s.Require().NoError(err)
	s.Equal(":8080", cfg.Addr)
	s.Equal(secrets.PBKDF2Key, cfg.DefaultStrategy)
	s.Equal(time.Hour, cfg.TokenTTL)
	s.Equal("keystone", cfg.TokenIssuer)
	s.Equal(6, cfg.OTPLength)
	s.Equal(5*time.Minute, cfg.OTPTTL)
	s.Equal(3, cfg.OTPMaxAttempts)
	s.Equal("keystone.trust-events", cfg.EventTopic)
}

func (s *ConfigSuite) TestFromEnvOverrides() {
	s.T().Setenv("KEYSTONE_MASTER_KEY", s.masterKey)
	s.T().Setenv("KEYSTONE_ADDR", ":9090")
	s.T().Setenv("KEYSTONE_PASSWORD_STRATEGY", secrets.BcryptKey)
	s.T().Setenv("KEYSTONE_TOKEN_TTL", "30m")
	s.T().Setenv("KEYSTONE_OTP_LENGTH", "8")

	cfg, err := FromEnv()
	s.Require().NoError(err)
	s.Equal(":9090", cfg.Addr)
	s.Equal(secrets.BcryptKey, cfg.DefaultStrategy)
	s.Equal(30*time.Minute, cfg.TokenTTL)
	s.Equal(8, cfg.OTPLength)
}

func (s *ConfigSuite) TestFromEnvRequiresMasterKey() {
	s.T().Setenv("KEYSTONE_MASTER_KEY", "")

	_, err := FromEnv()
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ConfigSuite) TestFromEnvRejectsUnknownStrategy() {
	s.T().Setenv("KEYSTONE_MASTER_KEY", s.masterKey)
	s.T().Setenv("KEYSTONE_PASSWORD_STRATEGY", "argon2")

	_, err := FromEnv()
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *ConfigSuite) TestMasterKeyDecoding() {
	cases := map[string]string{
		"not base64":   "!!!",
		"wrong length": base64.RawURLEncoding.EncodeToString([]byte("short")),
	}
	for name, encoded := range cases {
		s.Run(name, func() {
			cfg := Config{MasterKeyBase64: encoded}
			_, err := cfg.MasterKey()
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		})
	}
}
