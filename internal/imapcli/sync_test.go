package imapcli

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akozma/mailcore/internal/db"
	"github.com/akozma/mailcore/internal/models"
	"github.com/akozma/mailcore/internal/testutil"
	"github.com/akozma/mailcore/internal/thread"
)

func rawMessage(messageID, inReplyTo, references, subject, body string) string {
	lines := []string{
		"Message-ID: <" + messageID + ">",
		"From: Alice <alice@example.com>",
		"To: owner@acme.example",
		"Subject: " + subject,
		"Date: Mon, 02 Mar 2026 10:00:00 +0000",
		"Content-Type: text/plain; charset=utf-8",
	}
	if inReplyTo != "" {
		lines = append(lines, "In-Reply-To: <"+inReplyTo+">")
	}
	if references != "" {
		lines = append(lines, "References: "+references)
	}
	lines = append(lines, "", body, "")
	return strings.Join(lines, "\r\n")
}

func TestSync(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := testutil.NewTestDB(t)
	server := testutil.NewTestIMAPServer(t)
	defer server.Close()

	encryptor := testutil.GetTestEncryptor(t)
	encrypted, err := encryptor.Encrypt(server.Password())
	require.NoError(t, err)

	host, port := server.HostPort()
	client := &models.Client{
		Name:                  "Acme",
		FromAddress:           "owner@acme.example",
		APIToken:              "token-1",
		SMTPHost:              "smtp.acme.example",
		SMTPPort:              587,
		SMTPUsername:          "owner@acme.example",
		EncryptedSMTPPassword: encrypted,
		IMAPHost:              host,
		IMAPPort:              port,
		IMAPUsername:          server.Username(),
		EncryptedIMAPPassword: encrypted,
	}
	ctx := context.Background()
	require.NoError(t, db.SaveClient(ctx, pool, client))

	// Two messages forming one conversation, alongside the backend's seeded
	// sample message.
	server.AddRawMessage(t, "INBOX", "<q1@example.com>",
		rawMessage("q1@example.com", "", "", "Question", "How do I reset my password?"))
	server.AddRawMessage(t, "INBOX", "<q2@example.com>",
		rawMessage("q2@example.com", "q1@example.com", "<q1@example.com>", "Re: Question", "Never mind, found it."))

	resolver := thread.NewResolver(db.NewStore(pool))
	synchronizer := NewSynchronizerWithTimeout(pool, resolver, encryptor, 5*time.Second)

	result := synchronizer.Sync(ctx, client)
	require.Empty(t, result.Err)
	assert.Equal(t, 3, result.Fetched, "seed message plus the two appended")
	assert.Equal(t, 3, result.Saved)
	assert.Equal(t, 2, result.ThreadsTouched, "the reply joins its parent's thread")

	root, err := db.GetMessageByRemoteID(ctx, pool, client.ID, "q1@example.com")
	require.NoError(t, err)
	reply, err := db.GetMessageByRemoteID(ctx, pool, client.ID, "q2@example.com")
	require.NoError(t, err)

	assert.Equal(t, root.ThreadID, reply.ThreadID)
	assert.Equal(t, "q1@example.com", root.ThreadID)
	assert.True(t, root.IsThreadStarter)
	assert.False(t, reply.IsThreadStarter)
	assert.Equal(t, "q1@example.com", reply.InReplyTo)
	assert.Contains(t, root.BodyText, "reset my password")
	require.NotNil(t, reply.UID)

	// A second refresh finds nothing new and changes nothing.
	again := synchronizer.Sync(ctx, client)
	require.Empty(t, again.Err)
	assert.Equal(t, 0, again.Fetched)
	assert.Equal(t, 0, again.Saved)
}

func TestSyncIncremental(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := testutil.NewTestDB(t)
	server := testutil.NewTestIMAPServer(t)
	defer server.Close()

	encryptor := testutil.GetTestEncryptor(t)
	encrypted, err := encryptor.Encrypt(server.Password())
	require.NoError(t, err)

	host, port := server.HostPort()
	client := &models.Client{
		Name:                  "Acme",
		FromAddress:           "owner@acme.example",
		APIToken:              "token-1",
		SMTPHost:              "smtp.acme.example",
		SMTPPort:              587,
		SMTPUsername:          "owner@acme.example",
		EncryptedSMTPPassword: encrypted,
		IMAPHost:              host,
		IMAPPort:              port,
		IMAPUsername:          server.Username(),
		EncryptedIMAPPassword: encrypted,
	}
	ctx := context.Background()
	require.NoError(t, db.SaveClient(ctx, pool, client))

	resolver := thread.NewResolver(db.NewStore(pool))
	synchronizer := NewSynchronizerWithTimeout(pool, resolver, encryptor, 5*time.Second)

	first := synchronizer.Sync(ctx, client)
	require.Empty(t, first.Err)

	// A message arriving after the first refresh is picked up by the next one.
	server.AddRawMessage(t, "INBOX", "<late@example.com>",
		rawMessage("late@example.com", "", "", "Late arrival", "Just landed."))

	second := synchronizer.Sync(ctx, client)
	require.Empty(t, second.Err)
	assert.Equal(t, 1, second.Fetched)
	assert.Equal(t, 1, second.Saved)

	msg, err := db.GetMessageByRemoteID(ctx, pool, client.ID, "late@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Late arrival", msg.Subject)
}

func TestSyncUnreachableServer(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	pool := testutil.NewTestDB(t)

	encryptor := testutil.GetTestEncryptor(t)
	encrypted, err := encryptor.Encrypt("password")
	require.NoError(t, err)

	client := &models.Client{
		ID:                    "client-1",
		IMAPHost:              "127.0.0.1",
		IMAPPort:              1,
		IMAPUsername:          "username",
		EncryptedIMAPPassword: encrypted,
	}

	resolver := thread.NewResolver(db.NewStore(pool))
	synchronizer := NewSynchronizerWithTimeout(pool, resolver, encryptor, time.Second)

	result := synchronizer.Sync(context.Background(), client)
	assert.NotEmpty(t, result.Err, "connection failure is reported, not raised")
	assert.Equal(t, 0, result.Fetched)
}
