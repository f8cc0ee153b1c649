package liveview

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang/glog"

	"github.com/gorilla/websocket"
)

type RemoteChangeNotifierSettings struct {
	WsHandshakeTimeout time.Duration
	ReconnectTimeout   time.Duration
	PingTimeout        time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
}

func DefaultRemoteChangeNotifierSettings() *RemoteChangeNotifierSettings {
	return &RemoteChangeNotifierSettings{
		WsHandshakeTimeout: 2 * time.Second,
		ReconnectTimeout:   5 * time.Second,
		PingTimeout:        15 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReadTimeout:        60 * time.Second,
	}
}

// a change event pushed by the platform.
// a nil zone means the whole collection changed.
type ChangeEvent struct {
	Zone *int `json:"zone,omitempty"`
}

// RemoteChangeNotifier listens on the platform change feed and re-triggers
// the selector's refresh when the remote collection changes. It reconnects
// until its context ends. Events scoped to a zone the selector is not
// showing are ignored; the next refresh for that zone picks them up.
type RemoteChangeNotifier struct {
	ctx    context.Context
	cancel context.CancelFunc

	changeUrl string
	byJwt     string

	selector *ViewSelector

	settings *RemoteChangeNotifierSettings
}

func NewRemoteChangeNotifierWithDefaults(
	ctx context.Context,
	changeUrl string,
	byJwt string,
	selector *ViewSelector,
) *RemoteChangeNotifier {
	return NewRemoteChangeNotifier(ctx, changeUrl, byJwt, selector, DefaultRemoteChangeNotifierSettings())
}

func NewRemoteChangeNotifier(
	ctx context.Context,
	changeUrl string,
	byJwt string,
	selector *ViewSelector,
	settings *RemoteChangeNotifierSettings,
) *RemoteChangeNotifier {
	cancelCtx, cancel := context.WithCancel(ctx)
	notifier := &RemoteChangeNotifier{
		ctx:       cancelCtx,
		cancel:    cancel,
		changeUrl: changeUrl,
		byJwt:     byJwt,
		selector:  selector,
		settings:  settings,
	}
	go notifier.run()
	return notifier
}

func (self *RemoteChangeNotifier) run() {
	defer self.cancel()

	for {
		dialer := &websocket.Dialer{
			HandshakeTimeout: self.settings.WsHandshakeTimeout,
		}
		header := http.Header{}
		if self.byJwt != "" {
			header.Add("Authorization", fmt.Sprintf("Bearer %s", self.byJwt))
		}

		ws, _, err := dialer.DialContext(self.ctx, self.changeUrl, header)
		if err != nil {
			glog.Infof("[ntf]connect error = %s\n", err)
			select {
			case <-self.ctx.Done():
				return
			case <-time.After(self.settings.ReconnectTimeout):
				continue
			}
		}

		func() {
			defer ws.Close()

			handleCtx, handleCancel := context.WithCancel(self.ctx)
			defer handleCancel()

			// ping
			go func() {
				defer handleCancel()

				for {
					select {
					case <-handleCtx.Done():
						return
					case <-time.After(self.settings.PingTimeout):
						ws.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
						if err := ws.WriteMessage(websocket.PingMessage, make([]byte, 0)); err != nil {
							// note that for websocket a deadline timeout cannot be recovered
							return
						}
					}
				}
			}()

			for {
				select {
				case <-handleCtx.Done():
					return
				default:
				}

				ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
				messageType, message, err := ws.ReadMessage()
				if err != nil {
					glog.Infof("[ntf]read error = %s\n", err)
					return
				}

				switch messageType {
				case websocket.TextMessage:
					event := &ChangeEvent{}
					if err := json.Unmarshal(message, event); err != nil {
						glog.V(2).Infof("[ntf]bad event = %s\n", err)
						continue
					}
					self.handleEvent(event)
				default:
					glog.V(2).Infof("[ntf]other=%d\n", messageType)
				}
			}
		}()

		select {
		case <-self.ctx.Done():
			return
		case <-time.After(self.settings.ReconnectTimeout):
		}
	}
}

func (self *RemoteChangeNotifier) handleEvent(event *ChangeEvent) {
	filter := self.selector.Filter()
	if event.Zone != nil && filter.IsFiltered() && filter.Zone() != *event.Zone {
		glog.V(2).Infof("[ntf]skip zone=%d filter=%s\n", *event.Zone, filter)
		return
	}
	glog.V(1).Infof("[ntf]change filter=%s\n", filter)
	self.selector.Refresh()
}

func (self *RemoteChangeNotifier) Close() {
	self.cancel()
}
