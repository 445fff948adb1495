// Package control exposes a running session over a unix socket.
//
// Frames are [opcode LE u32][length LE u32][JSON payload], one request and
// one response per round trip.
package control

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/jfmyers9/tapedeck/internal/music"
	"github.com/jfmyers9/tapedeck/internal/session"
)

// Control opcodes.
const (
	opRequest  = 1
	opResponse = 2
	opClose    = 3
)

// maxFrameSize bounds a single payload so a bad header cannot exhaust memory
const maxFrameSize = 8 << 20

// ErrFrameTooLarge is returned when a frame header declares more than maxFrameSize bytes
var ErrFrameTooLarge = errors.New("control frame too large")

// Command names understood by the server.
const (
	CmdState      = "STATE"
	CmdPlay       = "PLAY"
	CmdPause      = "PAUSE"
	CmdToggle     = "TOGGLE"
	CmdStop       = "STOP"
	CmdNext       = "NEXT"
	CmdPrevious   = "PREVIOUS"
	CmdSeek       = "SEEK"
	CmdVolume     = "VOLUME"
	CmdMode       = "MODE"
	CmdJump       = "JUMP"
	CmdSetQueue   = "SET_QUEUE"
	CmdAdd        = "ADD"
	CmdInsertNext = "INSERT_NEXT"
	CmdRemove     = "REMOVE"
	CmdMove       = "MOVE"
	CmdClear      = "CLEAR"
)

// Request is a single command sent to the daemon
type Request struct {
	Cmd      string        `json:"cmd"`
	TrackID  string        `json:"track_id,omitempty"`
	TrackIDs []string      `json:"track_ids,omitempty"`
	Index    int           `json:"index"`
	To       int           `json:"to"`
	Position time.Duration `json:"position,omitempty"`
	Volume   float64       `json:"volume,omitempty"`
	Mode     string        `json:"mode,omitempty"`
	Nonce    string        `json:"nonce"`
}

// Response answers a Request. State is the session after the command ran.
type Response struct {
	Evt   string     `json:"evt"` // "OK" or "ERROR"
	Nonce string     `json:"nonce"`
	State *StateView `json:"state,omitempty"`
	Error *ErrorData `json:"error,omitempty"`
}

const (
	evtOK    = "OK"
	evtError = "ERROR"
)

// Error codes carried in ErrorData.
const (
	CodeInvalid  = 400 // Rejected argument, the session is unchanged
	CodeNotFound = 404 // Unknown track id
	CodeInternal = 500
)

type ErrorData struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// RemoteError is a failure reported by the daemon
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("daemon error %d: %s", e.Code, e.Message)
}

// StateView is the wire form of session.State
type StateView struct {
	Queue        []music.Track `json:"queue"`
	CurrentIndex int           `json:"current_index"`
	Mode         session.Mode  `json:"mode"`
	Position     time.Duration `json:"position"`
	Duration     time.Duration `json:"duration"`
	Volume       float64       `json:"volume"`
	Status       string        `json:"status"`
	IsPlaying    bool          `json:"is_playing"`
	IsLoading    bool          `json:"is_loading"`
	LastError    string        `json:"last_error,omitempty"`
}

// ViewOf converts a session state for the wire
func ViewOf(st session.State) StateView {
	v := StateView{
		Queue:        st.Queue,
		CurrentIndex: st.CurrentIndex,
		Mode:         st.Mode,
		Position:     st.Position,
		Duration:     st.Duration,
		Volume:       st.Volume,
		Status:       st.Status.String(),
		IsPlaying:    st.IsPlaying,
		IsLoading:    st.IsLoading,
	}
	if v.Queue == nil {
		v.Queue = []music.Track{}
	}
	if st.LastError != nil {
		v.LastError = st.LastError.Error()
	}
	return v
}

// CurrentTrack returns the track at CurrentIndex or nil
func (v StateView) CurrentTrack() *music.Track {
	if v.CurrentIndex < 0 || v.CurrentIndex >= len(v.Queue) {
		return nil
	}
	return &v.Queue[v.CurrentIndex]
}

// writeFrame sends a frame: [opcode LE u32][length LE u32][payload].
func writeFrame(w io.Writer, opcode uint32, payload []byte) error {
	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], opcode)
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// readFrame reads a frame, allocating a buffer of the exact size declared
// in the header.
func readFrame(r io.Reader) (uint32, []byte, error) {
	header := make([]byte, 8)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}
	opcode := binary.LittleEndian.Uint32(header[0:4])
	length := binary.LittleEndian.Uint32(header[4:8])
	if length > maxFrameSize {
		return 0, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, err
	}
	return opcode, payload, nil
}
