package api

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/imcoach/internal/bus"
	"github.com/matheus3301/imcoach/internal/coach"
	"github.com/matheus3301/imcoach/internal/status"
	"github.com/matheus3301/imcoach/internal/store"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Positioner reports how far the watcher has read.
type Positioner interface {
	Position() int64
}

// Deps are the daemon components the service reads and drives.
type Deps struct {
	Profile    string
	ChatDB     string
	Identity   coach.Identity
	Machine    *status.Machine
	Dispatcher *coach.Dispatcher
	Sender     coach.Sender
	DB         *store.DB
	Watcher    Positioner
	Bus        *bus.Bus
	Logger     *zap.Logger
}

// CoachService implements CoachServiceServer.
type CoachService struct {
	d         Deps
	startedAt time.Time
}

var _ CoachServiceServer = (*CoachService)(nil)

// NewCoachService creates the control service.
func NewCoachService(d Deps) *CoachService {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	d.Logger = d.Logger.Named("api")
	return &CoachService{d: d, startedAt: time.Now()}
}

func (s *CoachService) GetStatus(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	snap := s.d.Machine.Snapshot()
	info := StatusInfo{
		Profile:    s.d.Profile,
		State:      string(snap.State),
		Since:      snap.Since,
		Detail:     snap.Detail,
		UptimeMs:   time.Since(s.startedAt).Milliseconds(),
		UserID:     s.d.Identity.UserID,
		AgentID:    s.d.Identity.AgentID,
		ChatDB:     s.d.ChatDB,
		BusDropped: s.d.Bus.Dropped(),
	}
	if s.d.Watcher != nil {
		info.Position = s.d.Watcher.Position()
	}
	if s.d.Dispatcher != nil {
		info.Sessions = s.d.Dispatcher.Sessions().Len()
	}
	if s.d.DB != nil {
		counts, err := s.d.DB.CountDeliveries(ctx)
		if err != nil {
			s.d.Logger.Warn("count deliveries failed", zap.Error(err))
		} else {
			info.Deliveries = make(map[string]int, len(counts))
			for k, v := range counts {
				info.Deliveries[string(k)] = v
			}
		}
	}
	return reply(info)
}

func (s *CoachService) ListSessions(_ context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	if s.d.Dispatcher == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "dispatcher not initialized")
	}
	out := sessionList{Sessions: []SessionInfo{}}
	for _, sess := range s.d.Dispatcher.Sessions().List() {
		out.Sessions = append(out.Sessions, SessionInfo{
			Target:      sess.Target,
			Goal:        sess.Goal,
			HistoryLen:  len(sess.History),
			ActivatedAt: sess.ActivatedAt,
		})
	}
	return reply(out)
}

func (s *CoachService) ActivateSession(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req activateRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	req.Contact, req.Goal = strings.TrimSpace(req.Contact), strings.TrimSpace(req.Goal)
	if req.Contact == "" || req.Goal == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "contact and goal are required")
	}
	if s.d.Dispatcher == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "dispatcher not initialized")
	}
	// The session exists even if the acknowledgment cannot be delivered.
	if err := s.d.Dispatcher.Activate(ctx, coach.Activation{Contact: req.Contact, Goal: req.Goal}); err != nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "session activated but acknowledgment failed: %v", err)
	}
	return reply(struct{}{})
}

func (s *CoachService) EndSession(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req endRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	if s.d.Dispatcher == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "dispatcher not initialized")
	}
	if !s.d.Dispatcher.Deactivate(strings.TrimSpace(req.Contact)) {
		return nil, grpcstatus.Errorf(codes.NotFound, "no session for %q", req.Contact)
	}
	return reply(endResponse{Ended: true})
}

func (s *CoachService) SendMessage(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req sendRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	if req.To == "" {
		req.To = s.d.Identity.UserID
	}
	if req.Text == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "text is required")
	}
	if s.d.Sender == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "sender not initialized")
	}
	if err := s.d.Sender.Send(ctx, req.To, req.Text); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "send: %v", err)
	}
	return reply(struct{}{})
}

func (s *CoachService) RecentDeliveries(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req limitRequest
	if err := fromStruct(in, &req); err != nil {
		return nil, grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	if s.d.DB == nil {
		return nil, grpcstatus.Errorf(codes.Unavailable, "store not initialized")
	}
	rows, err := s.d.DB.RecentDeliveries(ctx, req.Limit)
	if err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "recent deliveries: %v", err)
	}
	out := deliveryList{Deliveries: []DeliveryInfo{}}
	for _, r := range rows {
		out.Deliveries = append(out.Deliveries, DeliveryInfo{
			ID:        r.ID,
			Recipient: r.Recipient,
			Kind:      string(r.Kind),
			Status:    string(r.Status),
			Error:     r.ErrorMessage,
			Body:      r.Body,
			CreatedAt: r.CreatedAt,
		})
	}
	return reply(out)
}

// Watch relays bus events whose kind starts with the requested namespace
// (default "coach.") until the client goes away.
func (s *CoachService) Watch(in *structpb.Struct, stream CoachService_WatchServer) error {
	var req watchRequest
	if err := fromStruct(in, &req); err != nil {
		return grpcstatus.Error(codes.InvalidArgument, err.Error())
	}
	if req.Namespace == "" {
		req.Namespace = "coach."
	}

	ch, unsub := s.d.Bus.Subscribe(req.Namespace, 256)
	defer unsub()

	for {
		select {
		case evt := <-ch:
			msg, err := toStruct(EventEnvelope{
				EventID:    uuid.NewString(),
				Profile:    s.d.Profile,
				Kind:       evt.Kind,
				OccurredAt: evt.Timestamp,
				Payload:    payloadMap(evt.Payload),
			})
			if err != nil {
				s.d.Logger.Warn("drop unencodable event", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func reply(v any) (*structpb.Struct, error) {
	s, err := toStruct(v)
	if err != nil {
		return nil, grpcstatus.Error(codes.Internal, err.Error())
	}
	return s, nil
}

// IsNotFound reports whether err is a NotFound status from the daemon.
func IsNotFound(err error) bool {
	return grpcstatus.Code(err) == codes.NotFound
}
