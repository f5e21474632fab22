package testutil

import (
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/backend/memory"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/emersion/go-imap/server"
)

// TestIMAPServer represents a test IMAP server instance.
type TestIMAPServer struct {
	Server   *server.Server
	Address  string
	Backend  *memory.Backend
	cleanup  func()
	username string
	password string
}

// NewTestIMAPServer creates a new test IMAP server with an in-memory backend.
// The memory backend creates a default user with username "username" and
// password "password", whose INBOX starts with one sample message.
func NewTestIMAPServer(t *testing.T) *TestIMAPServer {
	t.Helper()

	s, err := NewTestIMAPServerForE2E()
	if err != nil {
		t.Fatalf("Failed to start test IMAP server: %v", err)
	}
	return s
}

// NewTestIMAPServerForE2E starts a test IMAP server outside of a test
// context, for the standalone dev server. The caller closes it.
func NewTestIMAPServerForE2E() (*TestIMAPServer, error) {
	be := memory.New()

	s := server.New(be)
	s.AllowInsecureAuth = true

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	addr := listener.Addr().String()

	go func() {
		_ = s.Serve(listener)
	}()

	// Give server time to start
	time.Sleep(100 * time.Millisecond)

	return &TestIMAPServer{
		Server:   s,
		Address:  addr,
		Backend:  be,
		cleanup:  func() { _ = s.Close() },
		username: "username",
		password: "password",
	}, nil
}

// Close shuts down the test IMAP server.
func (s *TestIMAPServer) Close() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

// Username returns the default test username.
func (s *TestIMAPServer) Username() string {
	return s.username
}

// Password returns the default test password.
func (s *TestIMAPServer) Password() string {
	return s.password
}

// Connect creates a new IMAP client connection to the test server.
func (s *TestIMAPServer) Connect(t *testing.T) (*imapclient.Client, func()) {
	t.Helper()

	client, err := s.ConnectForE2E()
	if err != nil {
		t.Fatalf("Failed to connect to test server: %v", err)
	}

	cleanup := func() {
		_ = client.Logout()
	}

	return client, cleanup
}

// ConnectForE2E creates a logged-in client connection outside of a test
// context. The caller logs out.
func (s *TestIMAPServer) ConnectForE2E() (*imapclient.Client, error) {
	client, err := imapclient.Dial(s.Address)
	if err != nil {
		return nil, err
	}

	if err := client.Login(s.username, s.password); err != nil {
		_ = client.Logout()
		return nil, err
	}

	return client, nil
}

// CreateFolder creates a mailbox for the default user.
func (s *TestIMAPServer) CreateFolder(t *testing.T, name string) {
	t.Helper()

	if err := s.CreateFolderForE2E(name); err != nil {
		t.Fatalf("Failed to create folder %s: %v", name, err)
	}
}

// CreateFolderForE2E creates a mailbox outside of a test context.
func (s *TestIMAPServer) CreateFolderForE2E(name string) error {
	client, err := s.ConnectForE2E()
	if err != nil {
		return err
	}
	defer func() { _ = client.Logout() }()

	return client.Create(name)
}

// AddMessage adds a simple test message to the specified folder and returns
// its UID.
func (s *TestIMAPServer) AddMessage(t *testing.T, folderName, messageID, subject, from, to string, sentAt time.Time) uint32 {
	t.Helper()

	raw := fmt.Sprintf(`Message-ID: %s
Date: %s
From: %s
To: %s
Subject: %s
Content-Type: text/plain; charset=utf-8

Test message body.
`, messageID, sentAt.Format(time.RFC1123Z), from, to, subject)

	return s.AppendRaw(t, folderName, raw, []string{imap.SeenFlag}, time.Now())
}

// AppendRaw appends a raw RFC 822 message to the specified folder and
// returns its UID, taken from the folder's UIDNEXT before the append.
func (s *TestIMAPServer) AppendRaw(t *testing.T, folderName, raw string, flags []string, date time.Time) uint32 {
	t.Helper()

	uid, err := s.AppendRawForE2E(folderName, raw, flags, date)
	if err != nil {
		t.Fatalf("Failed to append message: %v", err)
	}
	return uid
}

// AppendRawForE2E appends a raw RFC 822 message outside of a test context.
func (s *TestIMAPServer) AppendRawForE2E(folderName, raw string, flags []string, date time.Time) (uint32, error) {
	client, err := s.ConnectForE2E()
	if err != nil {
		return 0, err
	}
	defer func() { _ = client.Logout() }()

	status, err := client.Status(folderName, []imap.StatusItem{imap.StatusUidNext})
	if err != nil {
		return 0, fmt.Errorf("failed to get status of %s: %w", folderName, err)
	}
	uid := status.UidNext

	if err := client.Append(folderName, flags, date, strings.NewReader(raw)); err != nil {
		return 0, fmt.Errorf("failed to append message: %w", err)
	}

	return uid, nil
}

// RemoveMessage deletes a message from the server, simulating an external
// client expunging it.
func (s *TestIMAPServer) RemoveMessage(t *testing.T, folderName string, uid uint32) {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	if _, err := client.Select(folderName, false); err != nil {
		t.Fatalf("Failed to select folder: %v", err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)
	item := imap.FormatFlagsOp(imap.AddFlags, true)
	if err := client.UidStore(seqSet, item, []interface{}{imap.DeletedFlag}, nil); err != nil {
		t.Fatalf("Failed to flag message deleted: %v", err)
	}
	if err := client.Expunge(nil); err != nil {
		t.Fatalf("Failed to expunge: %v", err)
	}
}

// ServerUIDs returns the UIDs of all undeleted messages in a folder.
func (s *TestIMAPServer) ServerUIDs(t *testing.T, folderName string) []uint32 {
	t.Helper()

	client, cleanup := s.Connect(t)
	defer cleanup()

	if _, err := client.Select(folderName, true); err != nil {
		t.Fatalf("Failed to select folder: %v", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.DeletedFlag}
	uids, err := client.UidSearch(criteria)
	if err != nil {
		t.Fatalf("Failed to search: %v", err)
	}

	return uids
}
