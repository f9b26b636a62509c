package harbor

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffvan302/fileharbor/internal/bytesize"
	"github.com/jeffvan302/fileharbor/pkg/auth"
	"github.com/jeffvan302/fileharbor/pkg/auth/testcert"
	"github.com/jeffvan302/fileharbor/pkg/client"
	"github.com/jeffvan302/fileharbor/pkg/config"
	"github.com/jeffvan302/fileharbor/pkg/fileops"
	"github.com/jeffvan302/fileharbor/pkg/harbor"
	"github.com/jeffvan302/fileharbor/pkg/library"
	"github.com/jeffvan302/fileharbor/pkg/session"
	"github.com/jeffvan302/fileharbor/pkg/wire"
)

// testEnv is a complete server plus the certificate material to talk to it.
type testEnv struct {
	t       *testing.T
	adapter *Adapter
	root    string // library root of "docs"
	port    int

	ca      *testcert.CA
	server  *testcert.Identity
	alice   *testcert.Identity
	bob     *testcert.Identity
	mallory *testcert.Identity

	cancel context.CancelFunc
}

// newTestEnv starts a server with one library ("docs") that only alice may
// use. mallory's certificate is on the CRL.
func newTestEnv(t *testing.T, mutate func(libs []*library.Library)) *testEnv {
	t.Helper()

	ca, err := testcert.NewCA("harbor-test-ca")
	require.NoError(t, err)
	server, err := ca.Issue("server")
	require.NoError(t, err)
	alice, err := ca.Issue("alice")
	require.NoError(t, err)
	bob, err := ca.Issue("bob")
	require.NoError(t, err)
	mallory, err := ca.Issue("mallory")
	require.NoError(t, err)

	authn := auth.New([]auth.ClientRecord{
		{ID: auth.Fingerprint(alice.Cert), Name: "alice"},
		{ID: auth.Fingerprint(bob.Cert), Name: "bob"},
		{ID: auth.Fingerprint(mallory.Cert), Name: "mallory"},
	}, []string{auth.Fingerprint(mallory.Cert)})

	root := t.TempDir()
	libs := []*library.Library{{
		ID:   "docs",
		Name: "Documents",
		Root: root,
		AuthorizedClients: map[string]struct{}{
			auth.Fingerprint(alice.Cert): {},
		},
	}}
	if mutate != nil {
		mutate(libs)
	}
	libraries, err := library.NewManager(libs)
	require.NoError(t, err)

	serverCert, err := server.TLSCertificate()
	require.NoError(t, err)

	adapter, err := New(Config{
		ListenAddr:   "127.0.0.1:0",
		TLS:          NewServerTLSConfig(serverCert, ca.Pool()),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		ChunkSize:    64 * 1024,
	}, authn, libraries, session.NewRegistry(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = adapter.Serve(ctx) }()
	<-adapter.ListenerReady()

	_, portStr, err := net.SplitHostPort(adapter.Addr().String())
	require.NoError(t, err)
	port, _ := strconv.Atoi(portStr)

	env := &testEnv{
		t: t, adapter: adapter, root: root, port: port,
		ca: ca, server: server, alice: alice, bob: bob, mallory: mallory,
		cancel: cancel,
	}
	t.Cleanup(func() {
		cancel()
		_ = adapter.Stop()
	})
	return env
}

// newClient builds a transfer engine for the given identity, writing its
// certificate material to disk the way a real client config does.
func (env *testEnv) newClient(id *testcert.Identity) *client.Client {
	env.t.Helper()
	dir := env.t.TempDir()

	certPath := filepath.Join(dir, "client.pem")
	keyPath := filepath.Join(dir, "client-key.pem")
	caPath := filepath.Join(dir, "ca.pem")
	require.NoError(env.t, os.WriteFile(certPath, id.CertPEM, 0600))
	require.NoError(env.t, os.WriteFile(keyPath, id.KeyPEM, 0600))
	require.NoError(env.t, os.WriteFile(caPath, env.ca.CertPEM, 0644))

	c, err := client.New(&config.TransferConfig{
		Host:           "127.0.0.1",
		Port:           env.port,
		LibraryID:      "docs",
		Cert:           certPath,
		Key:            keyPath,
		CACert:         caPath,
		ChunkSize:      8 * bytesize.KiB,
		RetryAttempts:  1,
		ConnectTimeout: 5 * time.Second,
	})
	require.NoError(env.t, err)
	env.t.Cleanup(func() { _ = c.Close() })
	return c
}

// rawConn is a frame-level connection for tests that drive the protocol
// below the client engine.
type rawConn struct {
	t    *testing.T
	conn *tls.Conn
}

func (env *testEnv) dialRaw(id *testcert.Identity) *rawConn {
	env.t.Helper()
	cert, err := id.TLSCertificate()
	require.NoError(env.t, err)

	conn, err := tls.Dial("tcp", env.adapter.Addr().String(), &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      env.ca.Pool(),
		MinVersion:   tls.VersionTLS12,
	})
	require.NoError(env.t, err)
	env.t.Cleanup(func() { _ = conn.Close() })
	return &rawConn{t: env.t, conn: conn}
}

func (rc *rawConn) send(frame *wire.Frame) *wire.Frame {
	rc.t.Helper()
	require.NoError(rc.t, wire.WriteFrame(context.Background(), rc.conn, frame, 5*time.Second))
	resp, err := wire.ReadFrame(context.Background(), rc.conn, 5*time.Second)
	require.NoError(rc.t, err)
	return resp
}

func (rc *rawConn) handshake(libraryID string, version uint16) *wire.Frame {
	rc.t.Helper()
	req, err := wire.NewRequest(wire.CmdHandshake, wire.HandshakeRequest{
		LibraryID:       libraryID,
		ProtocolVersion: version,
	})
	require.NoError(rc.t, err)
	return rc.send(req)
}

func sha256hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestBasicRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newClient(env.alice)
	ctx := context.Background()

	content := []byte("Hello, FileHarbor!")
	local := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(local, content, 0644))

	require.NoError(t, c.Upload(ctx, local, "hello.txt"))

	exists, err := c.Exists(ctx, "hello.txt")
	require.NoError(t, err)
	assert.True(t, exists)

	stat, err := c.Stat(ctx, "hello.txt")
	require.NoError(t, err)
	assert.Equal(t, uint64(18), stat.Size)
	assert.Equal(t, sha256hex(content), stat.Digest)

	copyPath := filepath.Join(t.TempDir(), "copy.txt")
	require.NoError(t, c.Download(ctx, "hello.txt", copyPath))

	got, err := os.ReadFile(copyPath)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got))
}

func TestRoundTripLargeFile(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newClient(env.alice)
	ctx := context.Background()

	// Several chunks at the 8 KiB test chunk size, not chunk-aligned
	content := make([]byte, 100*1024+37)
	_, err := rand.Read(content)
	require.NoError(t, err)

	local := filepath.Join(t.TempDir(), "big.bin")
	require.NoError(t, os.WriteFile(local, content, 0644))

	require.NoError(t, c.Upload(ctx, local, "big.bin"))

	out := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, c.Download(ctx, "big.bin", out))
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got))
}

func TestZeroByteRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newClient(env.alice)
	ctx := context.Background()

	local := filepath.Join(t.TempDir(), "empty")
	require.NoError(t, os.WriteFile(local, nil, 0644))

	require.NoError(t, c.Upload(ctx, local, "empty"))

	stat, err := c.Stat(ctx, "empty")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), stat.Size)
	assert.Equal(t, fileops.EmptyDigest, stat.Digest)

	out := filepath.Join(t.TempDir(), "empty-copy")
	require.NoError(t, c.Download(ctx, "empty", out))
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size())
}

func TestUnauthorizedLibrary(t *testing.T) {
	env := newTestEnv(t, nil)

	// bob has a valid certificate but is not in the docs authorized set
	c := env.newClient(env.bob)
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, harbor.KindForbidden, harbor.KindOf(err))
	assert.Equal(t, 0, env.adapter.Registry().Count(), "no session may be created")
}

func TestRevokedCertificate(t *testing.T) {
	env := newTestEnv(t, nil)

	c := env.newClient(env.mallory)
	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.Equal(t, harbor.KindAuth, harbor.KindOf(err))
	assert.Equal(t, 0, env.adapter.Registry().Count())
}

func TestVersionMismatch(t *testing.T) {
	env := newTestEnv(t, nil)
	rc := env.dialRaw(env.alice)

	resp := rc.handshake("docs", 99)
	assert.Equal(t, wire.StatusVersionMismatch, resp.Header.Status)
}

func TestFirstFrameMustBeHandshake(t *testing.T) {
	env := newTestEnv(t, nil)
	rc := env.dialRaw(env.alice)

	req, err := wire.NewRequest(wire.CmdPing, nil)
	require.NoError(t, err)
	resp := rc.send(req)
	assert.Equal(t, wire.StatusBadRequest, resp.Header.Status)

	// The connection is closed afterwards
	_, err = wire.ReadFrame(context.Background(), rc.conn, time.Second)
	assert.Error(t, err)
}

// malformedPayloadFrame builds a frame whose envelope is fully valid
// (magic, kind, lengths, digest) but whose payload is not JSON.
func malformedPayloadFrame(cmd wire.Command) *wire.Frame {
	payload := []byte("{this is not json")
	return &wire.Frame{
		Header: wire.Header{
			Version:    wire.ProtocolVersion,
			Kind:       wire.KindRequest,
			Command:    cmd,
			PayloadLen: uint32(len(payload)),
			Digest:     sha256.Sum256(payload),
		},
		Payload: payload,
	}
}

func TestMalformedPayloadIsBadRequestNotFatal(t *testing.T) {
	env := newTestEnv(t, nil)
	rc := env.dialRaw(env.alice)
	rc.handshake("docs", wire.ProtocolVersion)

	resp := rc.send(malformedPayloadFrame(wire.CmdStat))
	assert.Equal(t, wire.StatusBadRequest, resp.Header.Status)
	assert.Equal(t, harbor.KindInvalidArgument, harbor.KindOf(resp.Err()))

	// The connection survives and keeps serving commands
	ping, err := wire.NewRequest(wire.CmdPing, nil)
	require.NoError(t, err)
	resp = rc.send(ping)
	assert.Equal(t, wire.StatusOK, resp.Header.Status)
}

func TestProtocolErrorTerminatesConnection(t *testing.T) {
	env := newTestEnv(t, nil)
	rc := env.dialRaw(env.alice)
	rc.handshake("docs", wire.ProtocolVersion)

	// PUT_CHUNK outside a DATA frame is a protocol error: the server
	// answers and then drops the connection.
	req, err := wire.NewRequest(wire.CmdPutChunk, wire.PutChunkRequest{Path: "x", Offset: 0})
	require.NoError(t, err)
	resp := rc.send(req)
	assert.Equal(t, wire.StatusBadRequest, resp.Header.Status)

	_, err = wire.ReadFrame(context.Background(), rc.conn, time.Second)
	assert.Error(t, err, "connection must be closed after a protocol error")
}

func TestPathTraversal(t *testing.T) {
	env := newTestEnv(t, nil)
	rc := env.dialRaw(env.alice)
	rc.handshake("docs", wire.ProtocolVersion)

	req, err := wire.NewRequest(wire.CmdPutStart, wire.PutStartRequest{
		Path:   "../etc/passwd",
		Size:   4,
		Digest: sha256hex([]byte("pwn!")),
	})
	require.NoError(t, err)
	resp := rc.send(req)

	assert.Equal(t, wire.StatusBadRequest, resp.Header.Status)
	respErr := resp.Err()
	assert.Equal(t, harbor.KindPathTraversal, harbor.KindOf(respErr))

	// Nothing was created anywhere near the root
	entries, err := os.ReadDir(filepath.Dir(env.root))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "passwd")
	}
}

func TestConcurrentWriters(t *testing.T) {
	env := newTestEnv(t, nil)

	s1 := env.dialRaw(env.alice)
	s2 := env.dialRaw(env.alice)
	s1.handshake("docs", wire.ProtocolVersion)
	s2.handshake("docs", wire.ProtocolVersion)

	content := []byte("contended bytes")
	start := func() (*wire.Frame, error) {
		req, err := wire.NewRequest(wire.CmdPutStart, wire.PutStartRequest{
			Path:   "a.bin",
			Size:   uint64(len(content)),
			Digest: sha256hex(content),
		})
		require.NoError(t, err)
		return req, nil
	}

	// S1 wins the exclusive-write lock
	req, _ := start()
	resp := s1.send(req)
	require.Equal(t, wire.StatusOK, resp.Header.Status)

	// S2 is refused with a retryable conflict
	req, _ = start()
	resp = s2.send(req)
	assert.Equal(t, wire.StatusConflict, resp.Header.Status)
	assert.Equal(t, harbor.KindLocked, harbor.KindOf(resp.Err()))

	// S1 finishes; the path frees up
	data, err := wire.NewData(wire.CmdPutChunk, wire.StatusOK,
		wire.PutChunkRequest{Path: "a.bin", Offset: 0}, content)
	require.NoError(t, err)
	resp = s1.send(data)
	require.Equal(t, wire.StatusOK, resp.Header.Status)

	commit, err := wire.NewRequest(wire.CmdPutCommit, wire.PutCommitRequest{Path: "a.bin"})
	require.NoError(t, err)
	resp = s1.send(commit)
	require.Equal(t, wire.StatusOK, resp.Header.Status)

	// S2 retried succeeds
	req, _ = start()
	resp = s2.send(req)
	assert.Equal(t, wire.StatusOK, resp.Header.Status)
}

func TestResumeUpload(t *testing.T) {
	env := newTestEnv(t, nil)

	content := make([]byte, 64*1024)
	_, err := rand.Read(content)
	require.NoError(t, err)
	digest := sha256hex(content)

	// First connection uploads half and dies without committing
	s1 := env.dialRaw(env.alice)
	s1.handshake("docs", wire.ProtocolVersion)

	req, err := wire.NewRequest(wire.CmdPutStart, wire.PutStartRequest{
		Path: "resume.bin", Size: uint64(len(content)), Digest: digest,
	})
	require.NoError(t, err)
	resp := s1.send(req)
	require.Equal(t, wire.StatusOK, resp.Header.Status)

	half := len(content) / 2
	data, err := wire.NewData(wire.CmdPutChunk, wire.StatusOK,
		wire.PutChunkRequest{Path: "resume.bin", Offset: 0}, content[:half])
	require.NoError(t, err)
	resp = s1.send(data)
	require.Equal(t, wire.StatusOK, resp.Header.Status)
	s1.conn.Close()

	// The disconnect is asynchronous server-side; wait for the session
	// to be torn down so its lock is released.
	require.Eventually(t, func() bool {
		return env.adapter.Registry().Count() == 0
	}, 5*time.Second, 10*time.Millisecond)

	// Second connection resumes from the committed half
	s2 := env.dialRaw(env.alice)
	s2.handshake("docs", wire.ProtocolVersion)

	req, err = wire.NewRequest(wire.CmdPutStart, wire.PutStartRequest{
		Path: "resume.bin", Size: uint64(len(content)), Digest: digest,
	})
	require.NoError(t, err)
	resp = s2.send(req)
	require.Equal(t, wire.StatusOK, resp.Header.Status)

	var startResp wire.PutStartResponse
	require.NoError(t, resp.Decode(&startResp))
	assert.Equal(t, uint64(half), startResp.ResumeOffset)

	data, err = wire.NewData(wire.CmdPutChunk, wire.StatusOK,
		wire.PutChunkRequest{Path: "resume.bin", Offset: uint64(half)}, content[half:])
	require.NoError(t, err)
	resp = s2.send(data)
	require.Equal(t, wire.StatusOK, resp.Header.Status)

	commit, err := wire.NewRequest(wire.CmdPutCommit, wire.PutCommitRequest{Path: "resume.bin"})
	require.NoError(t, err)
	resp = s2.send(commit)
	require.Equal(t, wire.StatusOK, resp.Header.Status)

	var commitResp wire.PutCommitResponse
	require.NoError(t, resp.Decode(&commitResp))
	assert.Equal(t, digest, commitResp.Digest)

	got, err := os.ReadFile(filepath.Join(env.root, "resume.bin"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got))
}

func TestUploadChecksumMismatch(t *testing.T) {
	env := newTestEnv(t, nil)
	rc := env.dialRaw(env.alice)
	rc.handshake("docs", wire.ProtocolVersion)

	content := []byte("actual bytes")
	req, err := wire.NewRequest(wire.CmdPutStart, wire.PutStartRequest{
		Path: "bad.bin", Size: uint64(len(content)),
		Digest: sha256hex([]byte("something else entirely")),
	})
	require.NoError(t, err)
	resp := rc.send(req)
	require.Equal(t, wire.StatusOK, resp.Header.Status)

	data, err := wire.NewData(wire.CmdPutChunk, wire.StatusOK,
		wire.PutChunkRequest{Path: "bad.bin", Offset: 0}, content)
	require.NoError(t, err)
	resp = rc.send(data)
	require.Equal(t, wire.StatusOK, resp.Header.Status)

	commit, err := wire.NewRequest(wire.CmdPutCommit, wire.PutCommitRequest{Path: "bad.bin"})
	require.NoError(t, err)
	resp = rc.send(commit)

	assert.Equal(t, wire.StatusChecksumMismatch, resp.Header.Status)
	assert.Equal(t, harbor.KindChecksumMismatch, harbor.KindOf(resp.Err()))

	// Neither final nor staging survive
	assert.NoFileExists(t, filepath.Join(env.root, "bad.bin"))
	assert.NoFileExists(t, filepath.Join(env.root, "bad.bin"+fileops.StagingSuffix))
}

func TestDownloadResume(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newClient(env.alice)
	ctx := context.Background()

	content := make([]byte, 32*1024)
	_, err := rand.Read(content)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(env.root, "remote.bin"), content, 0644))

	// A previous attempt left the first 10000 bytes locally
	local := filepath.Join(t.TempDir(), "local.bin")
	require.NoError(t, os.WriteFile(local+".partial", content[:10000], 0644))

	require.NoError(t, c.Download(ctx, "remote.bin", local))

	got, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got))
	assert.NoFileExists(t, local+".partial")
}

func TestStaleLocalPartialRestarts(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newClient(env.alice)
	ctx := context.Background()

	content := []byte("short remote file")
	require.NoError(t, os.WriteFile(filepath.Join(env.root, "f.bin"), content, 0644))

	// The local partial is longer than the remote file
	local := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(local+".partial", make([]byte, 4096), 0644))

	require.NoError(t, c.Download(ctx, "f.bin", local))
	got, err := os.ReadFile(local)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(content, got))
}

func TestFileOperationsOverWire(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newClient(env.alice)
	ctx := context.Background()

	require.NoError(t, c.Mkdir(ctx, "sub/dir"))
	require.NoError(t, c.Mkdir(ctx, "sub/dir"), "mkdir is idempotent")

	content := []byte("list me")
	local := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(local, content, 0644))
	require.NoError(t, c.Upload(ctx, local, "sub/dir/f.txt"))

	entries, err := c.List(ctx, "", true)
	require.NoError(t, err)
	var paths []string
	for _, e := range entries {
		paths = append(paths, e.Path)
	}
	assert.Equal(t, []string{"sub", "sub/dir", "sub/dir/f.txt"}, paths)

	// Manifest paths are always library-root relative
	manifest, err := c.Manifest(ctx, "sub")
	require.NoError(t, err)
	found := false
	for _, e := range manifest {
		if e.Path == "sub/dir/f.txt" {
			found = true
			assert.Equal(t, sha256hex(content), e.Digest)
		}
	}
	assert.True(t, found, "manifest must digest the uploaded file")

	digest, err := c.Checksum(ctx, "sub/dir/f.txt")
	require.NoError(t, err)
	assert.Equal(t, sha256hex(content), digest)

	require.NoError(t, c.Rename(ctx, "sub/dir/f.txt", "sub/dir/g.txt"))
	exists, err := c.Exists(ctx, "sub/dir/f.txt")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, c.Delete(ctx, "sub/dir/g.txt"))
	err = c.Delete(ctx, "sub/dir/g.txt")
	require.Error(t, err)
	assert.Equal(t, harbor.KindNotFound, harbor.KindOf(err), "delete never succeeds silently")

	err = c.Rmdir(ctx, "sub", false)
	require.Error(t, err, "non-empty rmdir without recursive fails")
	require.NoError(t, c.Rmdir(ctx, "sub", true))

	require.NoError(t, c.Ping(ctx))
}

func TestRateLimitedTransfer(t *testing.T) {
	env := newTestEnv(t, func(libs []*library.Library) {
		libs[0].RateCap = 64 * 1024
	})
	c := env.newClient(env.alice)
	ctx := context.Background()

	// Two bucket fills: the second must wait for refill
	content := make([]byte, 128*1024)
	_, err := rand.Read(content)
	require.NoError(t, err)
	local := filepath.Join(t.TempDir(), "limited.bin")
	require.NoError(t, os.WriteFile(local, content, 0644))

	start := time.Now()
	require.NoError(t, c.Upload(ctx, local, "limited.bin"))
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond,
		"a 128 KiB upload at 64 KiB/s must take about a second")
}

func TestIdleReaperEndToEnd(t *testing.T) {
	env := newTestEnv(t, func(libs []*library.Library) {
		libs[0].IdleTimeout = 200 * time.Millisecond
	})

	reaperCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	go env.adapter.Registry().RunReaper(reaperCtx, 50*time.Millisecond, env.adapter.IdleTimeoutFor)

	rc := env.dialRaw(env.alice)
	rc.handshake("docs", wire.ProtocolVersion)

	// Park an upload so the reaper has staging to clean up
	req, err := wire.NewRequest(wire.CmdPutStart, wire.PutStartRequest{
		Path: "idle.bin", Size: 8, Digest: fileops.EmptyDigest,
	})
	require.NoError(t, err)
	resp := rc.send(req)
	require.Equal(t, wire.StatusOK, resp.Header.Status)
	staging := filepath.Join(env.root, "idle.bin"+fileops.StagingSuffix)
	require.FileExists(t, staging)

	require.Eventually(t, func() bool {
		return env.adapter.Registry().Count() == 0
	}, 5*time.Second, 20*time.Millisecond, "idle session must be reaped")

	assert.NoFileExists(t, staging, "reaper must delete staging files")
}

func TestGracefulShutdownTerminatesSessions(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.newClient(env.alice)
	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, 1, env.adapter.Registry().Count())

	env.cancel()
	require.NoError(t, env.adapter.Stop())
	assert.Equal(t, 0, env.adapter.Registry().Count())
}
