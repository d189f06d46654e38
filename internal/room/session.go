package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/koopa0/neon-pong/internal/game"
	"github.com/koopa0/neon-pong/internal/protocol"
	apperrors "github.com/koopa0/neon-pong/pkg/errors"
	"github.com/koopa0/neon-pong/pkg/logger"
)

const tracerName = "github.com/koopa0/neon-pong/internal/room"

// Session 一條連線的訊息分派器
//
// 傳輸層每收到一則文字訊息就呼叫 Handle；連線結束時呼叫 Close。
// Handle 由同一個讀取 goroutine 依序呼叫，mu 只保護與 Close 的競爭。
type Session struct {
	conn     Conn
	registry *Registry
	logger   *slog.Logger
	tracer   trace.Tracer
	ctx      context.Context

	mu   sync.Mutex
	room *Room
	side game.Side
}

// NewSession 創建 Session
func NewSession(ctx context.Context, conn Conn, registry *Registry) *Session {
	ctx = logger.WithConnID(ctx, conn.ID())
	return &Session{
		conn:     conn,
		registry: registry,
		logger:   registry.logger,
		tracer:   otel.Tracer(tracerName),
		ctx:      ctx,
	}
}

// Binding 目前綁定的房間碼與位置；未綁定時回傳空字串
func (s *Session) Binding() (string, game.Side) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.room == nil {
		return "", game.NoSide
	}
	return s.room.Code(), s.side
}

// Handle 處理一則客戶端訊息
//
// 格式錯誤或缺少 type 的訊息直接丟棄；應用層錯誤以 error 訊息回覆。
func (s *Session) Handle(data []byte) {
	msg, err := protocol.Parse(data)
	if err != nil {
		s.registry.metrics.ProtocolError("malformed")
		s.logger.DebugContext(s.ctx, "丟棄無法解析的訊息", "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeCreate:
		err = s.create()
	case protocol.TypeJoin:
		err = s.join(msg.Code)
	case protocol.TypeInput:
		s.input(msg)
	case protocol.TypeReady, protocol.TypeRestart:
		err = s.ready()
	case protocol.TypeLeave:
		s.leave("leave")
	default:
		s.logger.DebugContext(s.ctx, "忽略未知的訊息類型", "type", msg.Type)
	}

	if err != nil {
		s.sendError(err)
	}
}

// Close 連線結束：解除房間綁定
func (s *Session) Close() {
	s.leave("disconnect")
}

// create 建立新房間並綁定到左側
func (s *Session) create() error {
	ctx, span := s.tracer.Start(s.ctx, "room.create")
	defer span.End()

	s.leave("create")

	room, err := s.registry.Create(ctx, s.conn)
	if err != nil {
		recordError(span, err)
		return err
	}
	span.SetAttributes(attribute.String("room.code", room.Code()))
	s.bind(room, game.Left)

	s.logger.InfoContext(logger.WithRoomCode(ctx, room.Code()), "建立房間", "side", game.Left)
	return nil
}

// join 加入既有房間
func (s *Session) join(raw string) error {
	code := NormalizeCode(raw)

	ctx, span := s.tracer.Start(s.ctx, "room.join",
		trace.WithAttributes(attribute.String("room.code", code)))
	defer span.End()

	s.leave("join")

	if !ValidCode(code) {
		recordError(span, apperrors.ErrInvalidCode)
		return apperrors.ErrInvalidCode
	}

	room, ok := s.registry.Lookup(code)
	if !ok {
		recordError(span, apperrors.ErrRoomNotFound)
		return apperrors.ErrRoomNotFound
	}

	side, err := room.Join(s.conn)
	if err != nil {
		recordError(span, err)
		return err
	}
	s.bind(room, side)
	span.SetAttributes(attribute.String("room.side", string(side)))

	s.logger.InfoContext(logger.WithRoomCode(ctx, code), "加入房間", "side", side)
	return nil
}

// input 記錄目標位置；未綁定或 y 不合法時忽略
func (s *Session) input(msg protocol.Inbound) {
	room := s.current()
	if room == nil {
		return
	}

	y, ok := msg.Target()
	if !ok {
		s.registry.metrics.ProtocolError("input")
		return
	}
	room.Input(s.conn, y)
}

// ready 再戰準備
func (s *Session) ready() error {
	room := s.current()
	if room == nil {
		return apperrors.ErrNotInRoom
	}
	return room.Ready(s.conn)
}

// leave 解除綁定；未綁定時不做任何事
func (s *Session) leave(reason string) {
	s.mu.Lock()
	room := s.room
	s.room = nil
	s.side = game.NoSide
	s.mu.Unlock()

	if room == nil {
		return
	}

	_, span := s.tracer.Start(s.ctx, "room.leave", trace.WithAttributes(
		attribute.String("room.code", room.Code()),
		attribute.String("reason", reason),
	))
	defer span.End()

	room.Leave(s.conn)
	s.logger.DebugContext(logger.WithRoomCode(s.ctx, room.Code()), "離開房間", "reason", reason)
}

func (s *Session) bind(room *Room, side game.Side) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.room = room
	s.side = side
}

func (s *Session) current() *Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

func (s *Session) send(msg any) {
	data, err := protocol.Encode(msg)
	if err != nil {
		s.logger.ErrorContext(s.ctx, "序列化訊息失敗", "error", err)
		return
	}
	if !s.conn.Send(data) {
		s.registry.metrics.MessageDropped()
	}
}

// sendError 回覆應用層錯誤；連線保持開啟
func (s *Session) sendError(err error) {
	code := apperrors.ErrCodeInternal
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
	}
	s.registry.metrics.AppError(code)

	if code == apperrors.ErrCodeInternal || code == apperrors.ErrCodeUnavailable {
		s.logger.ErrorContext(s.ctx, "處理訊息失敗", "error", err)
	} else {
		s.logger.DebugContext(s.ctx, "拒絕請求", "code", code, "error", err)
	}

	s.send(protocol.NewError(apperrors.PublicMessage(err)))
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
