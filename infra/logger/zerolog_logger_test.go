package logger

import "testing"

func TestNewZerologLogger(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	t.Setenv("LOG_LEVEL", "debug")
	log := New("test")
	log.Debugf("debug %s", "message")
	log.Debugw("structured", map[string]any{"key": "value", "n": 3})
	log.Infof("info")
	log.Warnf("warn")
	log.Errorf("error")
}

func TestNewZerologLoggerJSON(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("LOG_LEVEL", "bogus") // falls back to info
	log := New("test")
	log.Infof("info in json mode")
}

func TestNopLogger(t *testing.T) {
	var log Logger = NopLogger{}
	log.Debugf("ignored")
	log.Debugw("ignored", nil)
	log.Infof("ignored")
	log.Warnf("ignored")
	log.Errorf("ignored")
}
