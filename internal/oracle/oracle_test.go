package oracle

import (
	"context"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func TestStaticFeed(t *testing.T) {
	ctx := context.Background()
	feed := NewStatic()

	_, ok, err := feed.LastPrice(ctx, "btc-feed", "BTC")
	require.NoError(t, err)
	require.False(t, ok)

	now := time.Now()
	feed.Set("btc-feed", "BTC", big.NewInt(22000000000), now)

	p, ok, err := feed.LastPrice(ctx, "btc-feed", "BTC")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "22000000000", p.Value.String())
	require.Equal(t, now, p.Timestamp)

	// Other feeds and assets stay empty.
	_, ok, err = feed.LastPrice(ctx, "eth-feed", "BTC")
	require.NoError(t, err)
	require.False(t, ok)

	feed.Clear("btc-feed", "BTC")
	_, ok, err = feed.LastPrice(ctx, "btc-feed", "BTC")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRescale(t *testing.T) {
	cases := []struct {
		in       string
		from, to int
		want     string
	}{
		{"2200000000000", 8, 7, "220000000000"},
		{"220000000", 7, 7, "220000000"},
		{"2200", 2, 7, "220000000"},
		{"123456789", 8, 7, "12345678"}, // truncates
	}

	for _, tc := range cases {
		got := rescale(bigFromString(t, tc.in), tc.from, tc.to)
		require.Equal(t, tc.want, got.String())
	}
}

func TestStreamCachesTicks(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		ticks := []string{
			`{"feed":"btc-feed","asset":"BTC","price":"22000000000","timestamp":` + timestamp(t) + `}`,
			`{"feed":"btc-feed","asset":"BTC","price":"not-a-number","timestamp":` + timestamp(t) + `}`,
			`{"feed":"eth-feed","asset":"ETH","price":"30000000000","timestamp":` + timestamp(t) + `}`,
		}
		for _, tick := range ticks {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tick)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		conn.ReadMessage()
	}))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	stream := NewStream(wsURL, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go stream.Run(ctx)

	require.Eventually(t, func() bool {
		_, ok, err := stream.LastPrice(ctx, "eth-feed", "ETH")
		return err == nil && ok
	}, 5*time.Second, 10*time.Millisecond)

	p, ok, err := stream.LastPrice(ctx, "btc-feed", "BTC")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "22000000000", p.Value.String())
}

func TestStreamStaleness(t *testing.T) {
	stream := NewStream("ws://unused", time.Minute)
	stream.apply(tickMessage{
		Feed:      "btc-feed",
		Asset:     "BTC",
		Price:     "22000000000",
		Timestamp: time.Now().Add(-2 * time.Minute).Unix(),
	})

	_, ok, err := stream.LastPrice(context.Background(), "btc-feed", "BTC")
	require.NoError(t, err)
	require.False(t, ok)
}

func bigFromString(t *testing.T, s string) *big.Int {
	t.Helper()
	v, ok := new(big.Int).SetString(s, 10)
	require.True(t, ok)
	return v
}

func timestamp(t *testing.T) string {
	t.Helper()
	return big.NewInt(time.Now().Unix()).String()
}
