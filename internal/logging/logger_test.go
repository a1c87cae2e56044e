package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetLevels(t *testing.T) {
	defer logger.SetLevel(logger.GetLevel())
	defer balancerLogger.SetLevel(balancerLogger.GetLevel())

	if err := SetLogLevel("debug"); err != nil {
		t.Fatalf("set level: %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug, got %s", logger.GetLevel())
	}
	if err := SetBalancerLogLevel("loud"); err == nil {
		t.Fatalf("expected error for an unknown level")
	}
	if balancerLogger.GetLevel() != logrus.WarnLevel {
		t.Fatalf("failed set must keep the level, got %s", balancerLogger.GetLevel())
	}
}

func TestSetFormatJSON(t *testing.T) {
	out := balancerLogger.Out
	defer func() {
		balancerLogger.SetOutput(out)
		_ = SetFormat("text")
	}()

	var buf bytes.Buffer
	balancerLogger.SetOutput(&buf)
	if err := SetFormat("json"); err != nil {
		t.Fatalf("set format: %v", err)
	}
	balancerLogger.WithField("core", 3).Warn("Balancer: Dropped request")

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("not json: %v (%q)", err, buf.String())
	}
	if entry["balancer_msg"] != "Balancer: Dropped request" || entry["core"] != float64(3) {
		t.Fatalf("unexpected entry %v", entry)
	}
	if err := SetFormat("xml"); err == nil {
		t.Fatalf("expected error for an unknown format")
	}
}
