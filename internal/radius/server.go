// Package radius is the AAA protocol engine: RADIUS packet dispatch,
// MS-CHAPv2 verification and the accounting path feeding the session
// correlation engine. Every datagram is handled independently; a handler
// failure is converted to a reject or ack at the handler boundary and
// never takes the server loop down.
package radius

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"layeh.com/radius"
	"layeh.com/radius/rfc2865"
	"layeh.com/radius/rfc2866"
	"layeh.com/radius/vendors/microsoft"
	"layeh.com/radius/vendors/mikrotik"

	"github.com/MikroWizard/mikroman/internal/audit"
	"github.com/MikroWizard/mikroman/internal/metrics"
	"github.com/MikroWizard/mikroman/internal/models"
	"github.com/MikroWizard/mikroman/internal/mschap"
	"github.com/MikroWizard/mikroman/internal/policy"
	"github.com/MikroWizard/mikroman/internal/repo"
)

// errProtocol marks malformed attributes; rejected without an audit row.
var errProtocol = errors.New("protocol error")

// mschapv2ResponseLen is the fixed MS-CHAP2-Response attribute size:
// 1 ident + 1 flags + 16 peer challenge + 8 reserved + 24 NT response.
const mschapv2ResponseLen = 50

// Audit messages for rejected Access-Requests.
const (
	msgDeviceNotExist  = "Device Not Exist"
	msgUserNotExist    = "User Not Exist"
	msgGroupUnverified = "Unable to verify group"
	msgWrongPassword   = "Wrong Password"
)

// Deps wires the engine's collaborators. All device/user/permission access
// goes through injected repositories so the crypto path stays pure.
type Deps struct {
	Devices   *repo.DeviceRepo
	Users     *repo.UserRepo
	Perms     *repo.PermRepo
	Sysconfig *repo.SysconfigRepo
	Audit     *audit.Engine
	Enforcer  *policy.Enforcer
	Log       *slog.Logger
}

// Server owns the auth, accounting and (optionally) CoA packet listeners.
type Server struct {
	deps   Deps
	secret string

	AuthAddr string
	AcctAddr string
	CoAAddr  string // "" disables the CoA/Disconnect listener

	auth *radius.PacketServer
	acct *radius.PacketServer
	coa  *radius.PacketServer

	now func() int64
}

func NewServer(deps Deps, secret string) *Server {
	return &Server{deps: deps, secret: secret, now: nil}
}

// Start launches one goroutine per listener. Each registers on wait and
// signals Done when its serve loop exits.
func (s *Server) Start(wait *sync.WaitGroup) {
	s.auth = s.packetServer(s.AuthAddr, s.handleAuth)
	s.acct = s.packetServer(s.AcctAddr, s.handleAcct)
	s.serve(wait, "auth", s.auth)
	s.serve(wait, "acct", s.acct)
	if s.CoAAddr != "" {
		s.coa = s.packetServer(s.CoAAddr, s.handleCoA)
		s.serve(wait, "coa", s.coa)
	}
}

// Stop shuts all listeners down.
func (s *Server) Stop(ctx context.Context) {
	for _, srv := range []*radius.PacketServer{s.auth, s.acct, s.coa} {
		if srv != nil {
			srv.Shutdown(ctx)
		}
	}
}

func (s *Server) packetServer(addr string, h func(radius.ResponseWriter, *radius.Request)) *radius.PacketServer {
	return &radius.PacketServer{
		Addr:         addr,
		Handler:      radius.HandlerFunc(h),
		SecretSource: radius.StaticSecretSource([]byte(s.secret)),
	}
}

func (s *Server) serve(wait *sync.WaitGroup, name string, srv *radius.PacketServer) {
	wait.Add(1)
	go func() {
		s.deps.Log.Info("radius listener starting", "listener", name, "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != radius.ErrServerShutdown {
			s.deps.Log.Error("radius listener failed", "listener", name, "err", err)
		} else {
			s.deps.Log.Info("radius listener stopped", "listener", name)
		}
		wait.Done()
	}()
}

// handleAuth processes one Access-Request. Every failure path answers with
// Access-Reject; the deferred recover keeps even a panicking handler from
// leaking past the boundary.
func (s *Server) handleAuth(w radius.ResponseWriter, r *radius.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.deps.Log.Error("auth handler panic", "panic", rec)
			metrics.AuthRequests.WithLabelValues("error").Inc()
			w.Write(r.Response(radius.CodeAccessReject))
		}
	}()

	ctx := r.Context()
	ts := s.clock()

	username := rfc2865.UserName_GetString(r.Packet)
	userIP := rfc2865.CallingStationID_GetString(r.Packet)
	nasIP := rfc2865.NASIPAddress_Get(r.Packet)
	if username == "" || nasIP == nil {
		s.reject(w, r, "missing User-Name or NAS-IP-Address")
		return
	}

	dev, err := s.deps.Devices.GetByIP(ctx, nasIP.String())
	if err != nil {
		if errors.Is(err, repo.ErrDeviceNotFound) {
			s.auditFailed(ctx, 0, username, userIP, ts, msgDeviceNotExist)
		} else {
			s.deps.Log.Error("device lookup failed", "nas_ip", nasIP.String(), "err", err)
		}
		s.reject(w, r, msgDeviceNotExist)
		return
	}

	user, err := s.deps.Users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repo.ErrUserNotFound) {
			s.auditFailed(ctx, dev.ID, username, userIP, ts, msgUserNotExist)
		} else {
			s.deps.Log.Error("user lookup failed", "username", username, "err", err)
		}
		s.reject(w, r, msgUserNotExist)
		return
	}

	group, err := s.enforce(ctx, dev, user)
	if err != nil {
		s.deps.Log.Warn("permission enforcement failed",
			"devid", dev.ID, "username", username, "err", err)
		s.auditFailed(ctx, dev.ID, username, userIP, ts, msgGroupUnverified)
		s.reject(w, r, msgGroupUnverified)
		return
	}

	reply, err := s.verifyMSCHAPv2(r, user, group)
	if err != nil {
		if errors.Is(err, errProtocol) {
			s.deps.Log.Warn("protocol error in Access-Request",
				"username", username, "err", err)
		} else {
			s.auditFailed(ctx, dev.ID, username, userIP, ts, msgWrongPassword)
		}
		s.reject(w, r, "")
		return
	}

	metrics.AuthRequests.WithLabelValues("accept").Inc()
	w.Write(reply)
}

// enforce resolves and pushes the user's permission group when force_perms
// is on. Returns the group name to advertise, or "" when enforcement is
// disabled.
func (s *Server) enforce(ctx context.Context, dev *models.Device, user *models.User) (string, error) {
	on, err := s.deps.Sysconfig.GetBool(ctx, repo.KeyForcePerms)
	if err != nil || !on {
		return "", err
	}

	groupIDs, err := s.deps.Perms.DeviceGroupIDs(ctx, dev.ID)
	if err != nil {
		return "", err
	}
	assignments, err := s.deps.Perms.AssignmentsByUserAndGroups(ctx, user.ID, groupIDs)
	if err != nil {
		return "", err
	}
	if len(assignments) == 0 {
		return "", fmt.Errorf("no permission assignment for user %d on device %d", user.ID, dev.ID)
	}

	peerIP := dev.PeerIP
	if peerIP == "" {
		peerIP, err = s.deps.Sysconfig.Get(ctx, repo.KeyDefaultIP)
		if err != nil {
			return "", err
		}
	}
	perm := &assignments[0].Perm
	if err := s.deps.Enforcer.EnforceUserGroup(ctx, dev, perm, peerIP, s.secret); err != nil {
		return "", err
	}
	return perm.Name, nil
}

// verifyMSCHAPv2 checks the response against the stored NT hash and builds
// the Access-Accept on success.
func (s *Server) verifyMSCHAPv2(r *radius.Request, user *models.User, group string) (*radius.Packet, error) {
	challenge := microsoft.MSCHAPChallenge_Get(r.Packet)
	response := microsoft.MSCHAP2Response_Get(r.Packet)
	if len(challenge) == 0 || response == nil {
		return nil, fmt.Errorf("%w: missing MS-CHAP attributes", errProtocol)
	}
	if len(response) != mschapv2ResponseLen {
		return nil, fmt.Errorf("%w: MS-CHAP2-Response length %d, want %d",
			errProtocol, len(response), mschapv2ResponseLen)
	}

	hash, err := hex.DecodeString(user.NTHash)
	if err != nil || len(hash) != 16 {
		return nil, fmt.Errorf("%w: stored NT hash unusable", errProtocol)
	}

	peerChallenge := response[2:18]
	ntResponse := response[26:50]

	expected, err := mschap.GenerateNTResponse(challenge, peerChallenge, user.Username, hash)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errProtocol, err)
	}
	if subtle.ConstantTimeCompare(expected, ntResponse) != 1 {
		return nil, errors.New("response mismatch")
	}

	authResp := mschap.GenerateAuthenticatorResponse(hash, ntResponse, peerChallenge, challenge, user.Username)
	sendKey, recvKey := mschap.MPPEKeys(hash, ntResponse)
	s.deps.Log.Debug("mppe keys derived",
		"username", user.Username,
		"send", hex.EncodeToString(sendKey), "recv", hex.EncodeToString(recvKey))

	reply := r.Response(radius.CodeAccessAccept)
	microsoft.MSCHAP2Success_Set(reply, []byte(authResp))
	if group != "" {
		mikrotik.MikrotikGroup_SetString(reply, group)
	}
	return reply, nil
}

// handleAcct turns accounting Start/Stop into correlation signals and
// always acknowledges, exactly once, even when the signal fails.
func (s *Server) handleAcct(w radius.ResponseWriter, r *radius.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			s.deps.Log.Error("acct handler panic", "panic", rec)
		}
		w.Write(r.Response(radius.CodeAccountingResponse))
	}()

	ctx := r.Context()
	ts := s.clock()

	nasIP := rfc2865.NASIPAddress_Get(r.Packet)
	if nasIP == nil {
		s.deps.Log.Warn("accounting request without NAS-IP-Address")
		return
	}
	dev, err := s.deps.Devices.GetByIP(ctx, nasIP.String())
	if err != nil {
		s.deps.Log.Warn("accounting for unknown device", "nas_ip", nasIP.String(), "err", err)
		return
	}

	sig := audit.Signal{
		DeviceID:  dev.ID,
		Username:  rfc2865.UserName_GetString(r.Packet),
		IP:        rfc2865.CallingStationID_GetString(r.Packet),
		SessionID: rfc2866.AcctSessionID_GetString(r.Packet),
		Timestamp: ts,
	}
	switch rfc2866.AcctStatusType_Get(r.Packet) {
	case rfc2866.AcctStatusType_Value_Start:
		sig.Kind = models.AuthLoggedIn
		metrics.AcctRequests.WithLabelValues("start").Inc()
	case rfc2866.AcctStatusType_Value_Stop:
		sig.Kind = models.AuthLoggedOut
		metrics.AcctRequests.WithLabelValues("stop").Inc()
	default:
		metrics.AcctRequests.WithLabelValues("other").Inc()
		return
	}

	if err := s.deps.Audit.Process(ctx, sig); err != nil {
		s.deps.Log.Error("accounting signal failed",
			"devid", dev.ID, "kind", sig.Kind, "err", err)
	}
}

// handleCoA always answers with a negative acknowledgement. Dynamic
// authorization is unsupported; see the design notes.
func (s *Server) handleCoA(w radius.ResponseWriter, r *radius.Request) {
	code := radius.CodeCoANAK
	if r.Packet.Code == radius.CodeDisconnectRequest {
		code = radius.CodeDisconnectNAK
	}
	s.deps.Log.Info("dynamic authorization rejected", "code", r.Packet.Code.String())
	w.Write(r.Response(code))
}

func (s *Server) reject(w radius.ResponseWriter, r *radius.Request, message string) {
	metrics.AuthRequests.WithLabelValues("reject").Inc()
	reply := r.Response(radius.CodeAccessReject)
	if message != "" {
		rfc2865.ReplyMessage_SetString(reply, message)
	}
	w.Write(reply)
}

func (s *Server) auditFailed(ctx context.Context, devID int64, username, ip string, ts int64, message string) {
	err := s.deps.Audit.Process(ctx, audit.Signal{
		DeviceID:  devID,
		Kind:      models.AuthFailed,
		Username:  username,
		IP:        ip,
		Timestamp: ts,
		Message:   message,
	})
	if err != nil {
		s.deps.Log.Error("failed-login audit write failed", "username", username, "err", err)
	}
}

func (s *Server) clock() int64 {
	if s.now != nil {
		return s.now()
	}
	return nowUnix()
}
