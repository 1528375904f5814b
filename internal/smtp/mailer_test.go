package smtp

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

type fakeClient struct {
	failures int
	calls    int
	sent     []*mail.Msg
}

func (c *fakeClient) DialAndSend(msgs ...*mail.Msg) error {
	c.calls++
	if c.calls <= c.failures {
		return errors.New("connection refused")
	}
	c.sent = append(c.sent, msgs...)
	return nil
}

func withdrawalData() map[string]any {
	return map[string]any{
		"BaseURL":          "http://localhost:4444",
		"WalletAddress":    "So11111111111111111111111111111111111111112",
		"Amount":           "2.0000",
		"RequestID":        "wd-1",
		"NewBalance":       "3.5000",
		"LockedCollateral": "1.0000",
	}
}

func TestSendRendersTemplates(t *testing.T) {
	client := &fakeClient{}
	m := NewMailerWithClient(client, "Leverpad <no_reply@example.org>")

	err := m.Send("ops@example.com", withdrawalData(), "withdrawal-requested.tmpl")
	require.NoError(t, err)
	require.Len(t, client.sent, 1)

	msg := client.sent[0]
	assert.Equal(t, []string{"Withdrawal request: 2.0000 SOL"}, msg.GetGenHeader(mail.HeaderSubject))

	var body strings.Builder
	_, err = msg.WriteTo(&body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "wd-1")
}

func TestSendRetries(t *testing.T) {
	client := &fakeClient{failures: 2}
	m := NewMailerWithClient(client, "no_reply@example.org")
	m.retryWait = 0

	require.NoError(t, m.Send("ops@example.com", withdrawalData(), "withdrawal-requested.tmpl"))
	assert.Equal(t, 3, client.calls)

	client = &fakeClient{failures: 3}
	m = NewMailerWithClient(client, "no_reply@example.org")
	m.retryWait = 0

	require.Error(t, m.Send("ops@example.com", withdrawalData(), "withdrawal-requested.tmpl"))
	assert.Equal(t, 3, client.calls)
}

func TestSendUnknownTemplate(t *testing.T) {
	m := NewMailerWithClient(&fakeClient{}, "no_reply@example.org")
	require.Error(t, m.Send("ops@example.com", nil, "missing.tmpl"))
}
