package server

import (
	"net/http"

	"github.com/coder/websocket"

	"github.com/soapscribe/soapscribe/pkg/capture/opus"
)

// audioIntake handles GET /api/session/audio: the websocket endpoint the web
// client streams microphone audio through while a recording is active.
//
// Protocol: binary messages carry audio frames (Opus packets when the intake
// is configured for Opus, raw chunks otherwise) and are appended to the open
// capture session in arrival order. The text message "stop" finalizes the
// recording and triggers transcription, equivalent to DELETE
// /api/session/record. Closing the socket without "stop" leaves the recording
// open so the client can reconnect and resume streaming.
func (s *Server) audioIntake(w http.ResponseWriter, r *http.Request) {
	ctrl := s.controller(r)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("audio intake accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	var dec *opus.Decoder
	if s.opusIntake {
		dec, err = opus.NewDecoder()
		if err != nil {
			s.log.Error("audio intake decoder unavailable", "error", err)
			conn.Close(websocket.StatusInternalError, "decoder unavailable")
			return
		}
	}

	ctx := r.Context()
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			// Client closed the socket or the request context ended.
			return
		}

		switch typ {
		case websocket.MessageBinary:
			chunk := data
			if dec != nil {
				chunk, err = dec.Decode(data)
				if err != nil {
					s.log.Warn("audio intake dropped undecodable frame", "error", err)
					continue
				}
			}
			if err := ctrl.WriteAudio(chunk); err != nil {
				conn.Close(websocket.StatusPolicyViolation, "no active recording")
				return
			}

		case websocket.MessageText:
			if string(data) != "stop" {
				continue
			}
			if err := ctrl.StopRecording(ctx); err != nil {
				s.log.Warn("stop via audio intake failed", "error", err)
				conn.Close(websocket.StatusInternalError, "transcription failed")
				return
			}
			conn.Close(websocket.StatusNormalClosure, "recording finalized")
			return
		}
	}
}
