package client

import (
	"context"
	"net/http"

	"github.com/ValentinKolb/rKV/lib/replication"
	"github.com/ValentinKolb/rKV/lib/store"
	"github.com/ValentinKolb/rKV/rpc/common"
)

// NewPeerClient creates the replication.IPeerClient used by a node to talk to
// its peers. Every write carries the common.ReplicationHeader.
func NewPeerClient(httpClient *http.Client) replication.IPeerClient {
	return &peerClient{client: httpClient}
}

type peerClient struct {
	client *http.Client
}

// --------------------------------------------------------------------------
// Interface Methods (docu see replication.IPeerClient)
// --------------------------------------------------------------------------

func (p *peerClient) Put(ctx context.Context, peer, key, value string) (int, error) {
	return p.do(ctx, http.MethodPut, keyURL(peer, key), common.PutRequest{Value: &value})
}

func (p *peerClient) Delete(ctx context.Context, peer, key string) (int, error) {
	return p.do(ctx, http.MethodDelete, keyURL(peer, key), nil)
}

func (p *peerClient) BatchPut(ctx context.Context, peer string, items []store.BatchItem) (int, error) {
	return p.do(ctx, http.MethodPost, pathURL(peer, common.PathBatch), common.BatchRequest{Items: items})
}

func (p *peerClient) Health(ctx context.Context, peer string) (int, error) {
	return p.do(ctx, http.MethodGet, pathURL(peer, common.PathHealthLive), nil)
}

// do sends a single request and returns the status code of the answer
func (p *peerClient) do(ctx context.Context, method, target string, body interface{}) (int, error) {
	req, err := newRequest(ctx, method, target, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set(common.ReplicationHeader, "true")

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer drainAndClose(resp)
	return resp.StatusCode, nil
}
