package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rusikfsk/unichat/pkg/log"
)

func TestLogTargetWritesAuditFields(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithWriter(log.Config{Level: "info"}, &buf)
	ctx := log.WithLogger(context.Background(), logger)

	LogTarget(ctx, ActionRemoveMember, "u1", "c1", "u2", "member removed")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("bad log line %q: %v", buf.String(), err)
	}
	want := map[string]string{
		log.FieldLogType:        log.LogTypeAudit,
		FieldAction:             ActionRemoveMember,
		log.FieldUserID:         "u1",
		log.FieldConversationID: "c1",
		FieldTargetID:           "u2",
		"message":               "member removed",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %s", k, entry[k], v)
		}
	}
}
