package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"qmaze/grid_world"
	. "qmaze/models"
	"qmaze/reinforcement"
	"qmaze/server/fastview"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	. "github.com/smartystreets/goconvey/convey"
)

func TestServer(t *testing.T) {
	Convey("Given a server over the debug maze", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		maze, err := grid_world.Convert(grid_world.DebugMaze)
		So(err, ShouldBeNil)
		log, _ := test.NewNullLogger()
		log.SetLevel(logrus.DebugLevel)

		metrics := NewMetrics()
		snapshots := make(chan reinforcement.Snapshot)
		initial := reinforcement.Snapshot{
			Policy: []reinforcement.Decision{{State: State{X: 1, Y: 0}, Action: NORTH, Value: 0}},
		}
		srv, err := NewServer(ctx, "", maze, initial, snapshots, metrics, log)
		So(err, ShouldBeNil)
		So(srv.addr, ShouldEqual, DefaultAddr)

		ts := httptest.NewServer(srv.Handler())
		defer ts.Close()

		Convey("The index page renders the views", func() {
			resp, err := http.Get(ts.URL + "/")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			body, _ := io.ReadAll(resp.Body)
			So(string(body), ShouldContainSubstring, "<!DOCTYPE html>")
			So(string(body), ShouldContainSubstring, `<svg id="valuesgrid"`)
			So(string(body), ShouldContainSubstring, `id="0-1-policy-arrow"`)
		})

		Convey("Metrics are served", func() {
			metrics.Observe(reinforcement.Progress{EpisodeLength: 7})
			resp, err := http.Get(ts.URL + "/metrics")
			So(err, ShouldBeNil)
			defer resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusOK)
			body, _ := io.ReadAll(resp.Body)
			So(string(body), ShouldContainSubstring, "qmaze_training_last_episode_length_steps 7")
		})

		Convey("Other methods are not routed", func() {
			resp, err := http.Post(ts.URL+"/", "text/plain", strings.NewReader(""))
			So(err, ShouldBeNil)
			resp.Body.Close()
			So(resp.StatusCode, ShouldEqual, http.StatusMethodNotAllowed)
		})

		Convey("Websocket clients receive snapshot updates", func() {
			url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
			conn, _, err := websocket.DefaultDialer.Dial(url, nil)
			So(err, ShouldBeNil)
			defer conn.Close()

			snapshots <- reinforcement.Snapshot{
				Progress: reinforcement.Progress{Episode: 5, EpisodeLength: 9, Epsilon: 0.5},
				Policy:   []reinforcement.Decision{{State: State{X: 1, Y: 0}, Action: EAST, Value: -2}},
			}

			// The client answers pings from within ReadMessage.
			values := map[string]string{}
			So(conn.SetReadDeadline(time.Now().Add(3*time.Second)), ShouldBeNil)
			for values["progress-episode"] == "" || values["0-1-value-text"] == "" {
				_, msg, err := conn.ReadMessage()
				So(err, ShouldBeNil)
				var updates []fastview.EleUpdate
				So(json.Unmarshal(msg, &updates), ShouldBeNil)
				for _, update := range updates {
					for _, op := range update.Ops {
						if op.Key == fastview.TextContent {
							values[update.EleId] = op.Value
						}
					}
				}
			}
			So(values["progress-episode"], ShouldEqual, "5")
			So(values["0-1-value-text"], ShouldEqual, "-2.00")
		})
	})
}
