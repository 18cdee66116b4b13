package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	logger "github.com/sirupsen/logrus"

	"autotrader/src/externalmodel"
	"autotrader/src/mapper"
	"autotrader/src/model"
)

const maxSearchPages = 5

// ErrUnexpectedFrame is returned for frames the session does not understand.
var ErrUnexpectedFrame = errors.New("unexpected socket frame")

// ConditionSearchClient runs short-lived socket sessions against the
// broker's condition-search service. Each call dials, logs in, performs its
// request and closes.
type ConditionSearchClient struct {
	url         string
	tokens      TokenSource
	governor    CallGovernor
	dialer      *websocket.Dialer
	maxFrames   int
	readTimeout time.Duration
}

func NewConditionSearchClient(cfg Config, tokens TokenSource, governor CallGovernor) *ConditionSearchClient {
	maxFrames := cfg.WSMaxFrames
	if maxFrames <= 0 {
		maxFrames = 30
	}
	readTimeout := cfg.WSReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	return &ConditionSearchClient{
		url:      cfg.WSURL(),
		tokens:   tokens,
		governor: governor,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 15 * time.Second,
			Proxy:            http.ProxyFromEnvironment,
		},
		maxFrames:   maxFrames,
		readTimeout: readTimeout,
	}
}

// ListConditions returns the operator's saved condition screens.
func (c *ConditionSearchClient) ListConditions(ctx context.Context) ([]model.ConditionScreen, error) {
	s, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer s.close()

	rows, err := s.listConditions()
	if err != nil {
		return nil, err
	}
	return mapper.ToConditionScreens(rows), nil
}

// SearchCondition runs one screen and returns the matching stocks.
func (c *ConditionSearchClient) SearchCondition(ctx context.Context, seq string) ([]model.ConditionMatch, error) {
	s, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	defer s.close()

	// The broker rejects CNSRREQ until the list has been requested once.
	if _, err := s.listConditions(); err != nil {
		return nil, err
	}

	var all []map[string]string
	contYn, nextKey := "N", ""
	for page := 0; page < maxSearchPages; page++ {
		if !c.record(externalmodel.TrnmCondSearch) {
			return nil, fmt.Errorf("%w: %s exceeded call budget", ErrRateLimited, externalmodel.TrnmCondSearch)
		}
		err := s.send(externalmodel.WSConditionSearchRequest{
			Trnm:       externalmodel.TrnmCondSearch,
			Seq:        seq,
			SearchType: "0",
			StockExch:  "K",
			ContYn:     contYn,
			NextKey:    nextKey,
		})
		if err != nil {
			return nil, err
		}
		frame, err := s.await(externalmodel.TrnmCondSearch)
		if err != nil {
			return nil, err
		}
		var rows []map[string]string
		if len(frame.Data) > 0 && string(frame.Data) != "null" {
			if err := json.Unmarshal(frame.Data, &rows); err != nil {
				return nil, fmt.Errorf("%w: CNSRREQ data: %v", ErrUnexpectedFrame, err)
			}
		}
		all = append(all, rows...)
		if frame.ContYn != "Y" || frame.NextKey == "" {
			break
		}
		contYn, nextKey = "Y", frame.NextKey
	}

	return mapper.ToConditionMatches(all)
}

func (c *ConditionSearchClient) record(trnm string) bool {
	if c.governor == nil {
		return true
	}
	return c.governor.RecordCall(trnm)
}

// -----------------------------
// SESSION
// -----------------------------

type wsSession struct {
	id          string
	ctx         context.Context
	conn        *websocket.Conn
	maxFrames   int
	readTimeout time.Duration
	done        chan struct{}
	log         *logger.Entry
}

func (c *ConditionSearchClient) open(ctx context.Context) (*wsSession, error) {
	if c.governor != nil && !c.governor.IsAvailable() {
		return nil, fmt.Errorf("%w: condition search refused by governor", ErrRateLimited)
	}

	token, err := c.tokens.GetValidToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("socket token: %w", err)
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		if c.governor != nil {
			c.governor.HandleError(err)
		}
		return nil, fmt.Errorf("ws dial failed: %w", err)
	}

	s := &wsSession{
		id:          uuid.NewString(),
		ctx:         ctx,
		conn:        conn,
		maxFrames:   c.maxFrames,
		readTimeout: c.readTimeout,
		done:        make(chan struct{}),
	}
	s.log = logger.WithFields(map[string]interface{}{
		"component": "kiwoom-ws",
		"session":   s.id,
	})

	// Unblocks pending reads when the caller gives up.
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-s.done:
		}
	}()

	if err := s.send(externalmodel.WSLoginRequest{Trnm: externalmodel.TrnmLogin, Token: token}); err != nil {
		s.close()
		return nil, err
	}
	if _, err := s.await(externalmodel.TrnmLogin); err != nil {
		s.close()
		return nil, fmt.Errorf("socket login: %w", err)
	}
	s.log.Debug("socket session logged in")
	return s, nil
}

func (s *wsSession) close() {
	select {
	case <-s.done:
		return
	default:
		close(s.done)
	}
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = s.conn.Close()
}

func (s *wsSession) listConditions() ([][]string, error) {
	if err := s.send(externalmodel.WSConditionListRequest{Trnm: externalmodel.TrnmCondList}); err != nil {
		return nil, err
	}
	frame, err := s.await(externalmodel.TrnmCondList)
	if err != nil {
		return nil, err
	}
	var rows [][]string
	if len(frame.Data) > 0 && string(frame.Data) != "null" {
		if err := json.Unmarshal(frame.Data, &rows); err != nil {
			return nil, fmt.Errorf("%w: CNSRLST data: %v", ErrUnexpectedFrame, err)
		}
	}
	return rows, nil
}

func (s *wsSession) send(v interface{}) error {
	if err := s.conn.WriteJSON(v); err != nil {
		return s.wrapIOError("write", err)
	}
	return nil
}

// await reads until a frame named want arrives. PING frames are echoed back
// unchanged; other known frames are skipped.
func (s *wsSession) await(want string) (*externalmodel.WSFrame, error) {
	for i := 0; i < s.maxFrames; i++ {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
			return nil, s.wrapIOError("deadline", err)
		}
		msgType, raw, err := s.conn.ReadMessage()
		if err != nil {
			return nil, s.wrapIOError("read", err)
		}

		var frame externalmodel.WSFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			return nil, fmt.Errorf("%w: malformed frame: %v", ErrUnexpectedFrame, err)
		}

		switch frame.Trnm {
		case externalmodel.TrnmPing:
			if err := s.conn.WriteMessage(msgType, raw); err != nil {
				return nil, s.wrapIOError("ping echo", err)
			}
			continue
		case want:
			if frame.ReturnCode != nil && *frame.ReturnCode != 0 {
				return nil, &BrokerError{APIID: frame.Trnm, Code: *frame.ReturnCode, Msg: frame.ReturnMsg}
			}
			return &frame, nil
		case externalmodel.TrnmLogin, externalmodel.TrnmCondList, externalmodel.TrnmCondSearch,
			externalmodel.TrnmCondClear, externalmodel.TrnmReal:
			s.log.WithField("trnm", frame.Trnm).Debug("skipping frame while waiting for " + want)
			continue
		default:
			return nil, fmt.Errorf("%w: trnm %q", ErrUnexpectedFrame, frame.Trnm)
		}
	}
	return nil, fmt.Errorf("no %s reply within %d frames", want, s.maxFrames)
}

func (s *wsSession) wrapIOError(op string, err error) error {
	if ctxErr := s.ctx.Err(); ctxErr != nil {
		return fmt.Errorf("ws %s: %w", op, ctxErr)
	}
	return fmt.Errorf("ws %s failed: %w", op, err)
}
