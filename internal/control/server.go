package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jfmyers9/tapedeck/internal/music"
	"github.com/jfmyers9/tapedeck/internal/session"
	"github.com/rs/zerolog"
)

// Player is the session surface the server drives
type Player interface {
	State(ctx context.Context) (session.State, error)
	Play(ctx context.Context) error
	PlayTrack(ctx context.Context, track music.Track) error
	PlayAt(ctx context.Context, index int) error
	Pause(ctx context.Context) error
	TogglePlay(ctx context.Context) error
	Stop(ctx context.Context) error
	Next(ctx context.Context) error
	Previous(ctx context.Context) error
	Seek(ctx context.Context, pos time.Duration) error
	SetVolume(ctx context.Context, level float64) error
	SetMode(ctx context.Context, mode session.Mode) error
	SetQueue(ctx context.Context, tracks []music.Track, start int) error
	AddToQueue(ctx context.Context, track music.Track) error
	InsertNext(ctx context.Context, track music.Track) error
	RemoveAt(ctx context.Context, index int) error
	Reorder(ctx context.Context, from, to int) error
	ClearQueue(ctx context.Context) error
}

// Server accepts control connections on a unix socket
type Server struct {
	path    string
	player  Player
	catalog session.Catalog
	logger  zerolog.Logger

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer creates a server for player listening at path. Track ids in
// requests are resolved through catalog.
func NewServer(path string, player Player, catalog session.Catalog, logger zerolog.Logger) *Server {
	return &Server{
		path:    path,
		player:  player,
		catalog: catalog,
		logger:  logger.With().Str("component", "control").Logger(),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Serve listens until ctx is cancelled, then closes every connection and
// removes the socket
func (s *Server) Serve(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}
	// A previous daemon that crashed leaves its socket behind
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove stale socket: %w", err)
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.path, err)
	}
	if err := os.Chmod(s.path, 0600); err != nil {
		ln.Close()
		return fmt.Errorf("failed to restrict socket permissions: %w", err)
	}

	s.logger.Info().Str("path", s.path).Msg("Control socket listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			s.logger.Error().Err(err).Msg("Accept failed")
			continue
		}

		s.track(conn, true)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.track(conn, false)
			s.handleConn(ctx, conn)
		}()
	}

	s.closeAll()
	s.wg.Wait()
	os.Remove(s.path)
	s.logger.Info().Msg("Control socket closed")
	return nil
}

func (s *Server) track(conn net.Conn, add bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if add {
		s.conns[conn] = struct{}{}
	} else {
		delete(s.conns, conn)
		conn.Close()
	}
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		conn.Close()
	}
}

// handleConn serves requests on conn until the peer closes it
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	for {
		opcode, data, err := readFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				s.logger.Debug().Err(err).Msg("Connection read failed")
			}
			return
		}

		switch opcode {
		case opClose:
			return
		case opRequest:
		default:
			s.logger.Debug().Uint32("opcode", opcode).Msg("Ignoring unknown opcode")
			continue
		}

		var req Request
		var resp Response
		if err := json.Unmarshal(data, &req); err != nil {
			resp = errorResponse("", CodeInvalid, fmt.Errorf("malformed request: %w", err))
		} else {
			resp = s.handle(ctx, req)
		}

		payload, err := json.Marshal(resp)
		if err != nil {
			s.logger.Error().Err(err).Msg("Failed to encode response")
			return
		}
		if err := writeFrame(conn, opResponse, payload); err != nil {
			s.logger.Debug().Err(err).Msg("Connection write failed")
			return
		}
	}
}

// handle runs one request against the player
func (s *Server) handle(ctx context.Context, req Request) Response {
	s.logger.Debug().Str("cmd", req.Cmd).Msg("Request")

	if err := s.dispatch(ctx, req); err != nil {
		return errorResponse(req.Nonce, codeFor(err), err)
	}

	st, err := s.player.State(ctx)
	if err != nil {
		return errorResponse(req.Nonce, CodeInternal, err)
	}
	view := ViewOf(st)
	return Response{Evt: evtOK, Nonce: req.Nonce, State: &view}
}

func (s *Server) dispatch(ctx context.Context, req Request) error {
	switch req.Cmd {
	case CmdState:
		return nil
	case CmdPlay:
		if req.TrackID == "" {
			return s.player.Play(ctx)
		}
		t, err := s.lookup(ctx, req.TrackID)
		if err != nil {
			return err
		}
		return s.player.PlayTrack(ctx, *t)
	case CmdPause:
		return s.player.Pause(ctx)
	case CmdToggle:
		return s.player.TogglePlay(ctx)
	case CmdStop:
		return s.player.Stop(ctx)
	case CmdNext:
		return s.player.Next(ctx)
	case CmdPrevious:
		return s.player.Previous(ctx)
	case CmdSeek:
		return s.player.Seek(ctx, req.Position)
	case CmdVolume:
		return s.player.SetVolume(ctx, req.Volume)
	case CmdMode:
		mode, err := session.ParseMode(req.Mode)
		if err != nil {
			return err
		}
		return s.player.SetMode(ctx, mode)
	case CmdJump:
		return s.player.PlayAt(ctx, req.Index)
	case CmdSetQueue:
		tracks := make([]music.Track, 0, len(req.TrackIDs))
		for _, id := range req.TrackIDs {
			t, err := s.lookup(ctx, id)
			if err != nil {
				return err
			}
			tracks = append(tracks, *t)
		}
		return s.player.SetQueue(ctx, tracks, req.Index)
	case CmdAdd:
		t, err := s.lookup(ctx, req.TrackID)
		if err != nil {
			return err
		}
		return s.player.AddToQueue(ctx, *t)
	case CmdInsertNext:
		t, err := s.lookup(ctx, req.TrackID)
		if err != nil {
			return err
		}
		return s.player.InsertNext(ctx, *t)
	case CmdRemove:
		return s.player.RemoveAt(ctx, req.Index)
	case CmdMove:
		return s.player.Reorder(ctx, req.Index, req.To)
	case CmdClear:
		return s.player.ClearQueue(ctx)
	default:
		return &session.ValidationError{Op: "dispatch", Err: fmt.Errorf("unknown command %q", req.Cmd)}
	}
}

// errTrackUnknown marks a track id the catalog could not resolve
type errTrackUnknown struct {
	id  string
	err error
}

func (e *errTrackUnknown) Error() string {
	return fmt.Sprintf("unknown track %s: %v", e.id, e.err)
}

func (e *errTrackUnknown) Unwrap() error { return e.err }

func (s *Server) lookup(ctx context.Context, id string) (*music.Track, error) {
	if id == "" {
		return nil, &session.ValidationError{Op: "lookup", Err: errors.New("track id is required")}
	}
	t, err := s.catalog.Lookup(ctx, id)
	if err != nil {
		return nil, &errTrackUnknown{id: id, err: err}
	}
	return t, nil
}

func codeFor(err error) int {
	var unknown *errTrackUnknown
	switch {
	case errors.As(err, &unknown):
		return CodeNotFound
	case session.IsValidation(err):
		return CodeInvalid
	default:
		return CodeInternal
	}
}

func errorResponse(nonce string, code int, err error) Response {
	return Response{
		Evt:   evtError,
		Nonce: nonce,
		Error: &ErrorData{Code: code, Message: err.Error()},
	}
}
