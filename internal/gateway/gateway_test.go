package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stockvn/paygate/internal/xerrors"
	"github.com/stockvn/paygate/pkg/logger"
)

const banksJSON = `{"data":[
	{"name":"Ngân hàng TMCP Quân đội","code":"MB","bin":"970422","short_name":"MBBank","supported":true},
	{"name":"Ngân hàng TMCP Ngoại Thương Việt Nam","code":"VCB","bin":"970436","short_name":"Vietcombank","supported":true},
	{"name":"Ngân hàng Test","code":"TST","bin":"000000","short_name":"TestBank","supported":false}
]}`

func TestFetchBanks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(banksJSON))
	}))
	defer srv.Close()

	banks, err := NewClient(srv.URL, time.Second).FetchBanks(context.Background())
	require.NoError(t, err)
	require.Len(t, banks, 3)
	assert.Equal(t, "MBBank", banks[0].ShortName)
	assert.Equal(t, "970422", banks[0].BIN)
	assert.False(t, banks[2].Supported)
}

func TestFetchBanksRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(banksJSON))
	}))
	defer srv.Close()

	banks, err := NewClient(srv.URL, time.Second).FetchBanks(context.Background())
	require.NoError(t, err)
	assert.Len(t, banks, 3)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestFetchBanksUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).FetchBanks(context.Background())
	assert.Equal(t, xerrors.KindUpstreamUnavailable, xerrors.KindOf(err))
}

func TestRenderQR(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n0000")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "PAY0A1B2C3D", r.URL.Query().Get("des"))
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	body, contentType, err := NewClient("", time.Second).RenderQR(context.Background(), srv.URL+"/img?des=PAY0A1B2C3D")
	require.NoError(t, err)
	assert.Equal(t, png, body)
	assert.Equal(t, "image/png", contentType)

	_, _, err = NewClient("", time.Second).RenderQR(context.Background(), "")
	assert.Equal(t, xerrors.KindNotFound, xerrors.KindOf(err))
}

type stubSource struct {
	banks []Bank
	err   error
	calls int32
}

func (s *stubSource) FetchBanks(ctx context.Context) ([]Bank, error) {
	atomic.AddInt32(&s.calls, 1)
	return s.banks, s.err
}

func TestBankCatalogKnown(t *testing.T) {
	src := &stubSource{banks: []Bank{
		{Code: "MB", BIN: "970422", ShortName: "MBBank", Supported: true},
		{Code: "TST", ShortName: "TestBank", Supported: false},
	}}
	catalog := NewBankCatalog(src, logger.NewNop())

	_, loaded := catalog.Known("MBBank")
	assert.False(t, loaded)

	require.NoError(t, catalog.Refresh(context.Background()))
	for _, code := range []string{"MBBank", "mbbank", "MB", "970422"} {
		known, loaded := catalog.Known(code)
		assert.True(t, loaded)
		assert.True(t, known, code)
	}
	known, _ := catalog.Known("TestBank")
	assert.False(t, known)

	bank, ok := catalog.Lookup("mb")
	require.True(t, ok)
	assert.Equal(t, "MBBank", bank.ShortName)
}

func TestBankCatalogKeepsCacheOnFailure(t *testing.T) {
	src := &stubSource{banks: []Bank{{ShortName: "MBBank", Supported: true}}}
	catalog := NewBankCatalog(src, logger.NewNop())
	require.NoError(t, catalog.Refresh(context.Background()))

	src.err = errors.New("connection refused")
	assert.Error(t, catalog.Refresh(context.Background()))

	known, loaded := catalog.Known("MBBank")
	assert.True(t, loaded)
	assert.True(t, known)
}

func TestBankCatalogStartRetriesUntilLoaded(t *testing.T) {
	src := &stubSource{err: errors.New("down")}
	catalog := NewBankCatalog(src, logger.NewNop())
	catalog.backoff = 5 * time.Millisecond
	catalog.maxBackoff = 10 * time.Millisecond

	catalog.Start()
	defer catalog.Stop()

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&src.calls) >= 2 }, time.Second, 5*time.Millisecond)
	_, loaded := catalog.Known("MBBank")
	assert.False(t, loaded)
}
