// Package events pushes project state to the editor over socket.io.
package events

import (
	"encoding/json"
	"fmt"
	"net/http"

	"polotno-studio/project"

	"github.com/sirupsen/logrus"
	"github.com/zishang520/engine.io/v2/types"
	socketio "github.com/zishang520/socket.io/v2/socket"
)

const (
	StateEvent    = "project-state"
	DocumentEvent = "document-update"
)

type Project interface {
	State() project.State
	Subscribe(fn func(project.State)) (cancel func())
}

type Document interface {
	Update(raw json.RawMessage) error
}

type Server struct {
	io     *socketio.Server
	cancel func()
}

// NewServer emits the project state to every client on connect and on every
// change. Clients may push scene edits with document-update.
func NewServer(p Project, doc Document) *Server {
	opts := socketio.DefaultServerOptions()
	opts.SetMaxHttpBufferSize(20000000)
	opts.SetPath("/socket.io")
	opts.SetAllowEIO3(true)
	opts.SetCors(&types.Cors{
		Origin:      "*",
		Credentials: true,
	})
	ioo := socketio.NewServer(nil, opts)

	ioo.On("connection", func(clients ...any) {
		socket, ok := clients[0].(*socketio.Socket)
		if !ok {
			return
		}
		log := logrus.WithField("socket_id", socket.Id())
		log.Debug("Editor connected")
		socket.Emit(StateEvent, p.State())

		socket.On(DocumentEvent, func(datas ...any) {
			raw, err := documentPayload(datas)
			if err == nil {
				err = doc.Update(raw)
			}
			if err != nil {
				log.WithError(err).Warn("Rejected document update")
			}
		})
		socket.On("disconnect", func(...any) {
			log.Debug("Editor disconnected")
			socket.RemoveAllListeners("")
		})
	})

	cancel := p.Subscribe(func(s project.State) {
		if err := ioo.Sockets().Emit(StateEvent, s); err != nil {
			logrus.WithError(err).Warn("Failed to emit project state")
		}
	})

	return &Server{io: ioo, cancel: cancel}
}

func (s *Server) Handler() http.Handler {
	return s.io.ServeHandler(nil)
}

func (s *Server) Close() {
	s.cancel()
	s.io.Close(nil)
}

// documentPayload accepts the scene either as JSON text or as a decoded object.
func documentPayload(datas []any) (json.RawMessage, error) {
	if len(datas) == 0 {
		return nil, fmt.Errorf("missing document")
	}
	switch v := datas[0].(type) {
	case string:
		return json.RawMessage(v), nil
	case []byte:
		return json.RawMessage(v), nil
	case map[string]any:
		return json.Marshal(v)
	}
	return nil, fmt.Errorf("unsupported document payload %T", datas[0])
}
