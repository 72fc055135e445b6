package broker

import (
	"context"

	"gagyebu/internal/core"
)

// Gateway answers broker queries for a stored connection, taking care of
// account parsing and token reuse.
type Gateway struct {
	client  *Client
	session *Session
}

func NewGateway(client *Client, store TokenStore) *Gateway {
	return &Gateway{client: client, session: NewSession(client, store)}
}

func (g *Gateway) Holdings(ctx context.Context, conn core.BrokerConnection) ([]core.Holding, error) {
	account, err := ParseAccount(conn.AccountNumber)
	if err != nil {
		return nil, err
	}
	token, err := g.session.Token(ctx, conn)
	if err != nil {
		return nil, err
	}
	return g.client.Holdings(ctx, CredentialsOf(conn), token, account)
}

func (g *Gateway) Price(ctx context.Context, conn core.BrokerConnection, code string) (core.Quote, error) {
	token, err := g.session.Token(ctx, conn)
	if err != nil {
		return core.Quote{}, err
	}
	return g.client.Price(ctx, CredentialsOf(conn), token, code)
}

// Forget drops the cached token for a user whose credentials changed.
func (g *Gateway) Forget(userID string) { g.session.Forget(userID) }
