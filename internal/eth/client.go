package eth

import (
	"context"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

// Client is a rate limited RPC client.
type Client struct {
	rpc     *ethclient.Client
	limiter *rate.Limiter
}

// Dial connects to url allowing rps requests per second; rps <= 0 disables limiting.
func Dial(url string, rps float64, burst int) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("rpc url is empty")
	}
	rpc, err := ethclient.Dial(url)
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Client{rpc: rpc, limiter: rate.NewLimiter(limit, burst)}, nil
}

// NewClient dials RPC_URL from the environment or .env
func NewClient() (*Client, error) {
	godotenv.Load()
	url := os.Getenv("RPC_URL")

	if url == "" {
		return nil, fmt.Errorf("RPC_URL not set in .env")
	}
	return Dial(url, 0, 1)
}

func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.rpc.CallContract(ctx, msg, blockNumber)
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	return c.rpc.BlockNumber(ctx)
}

func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return c.rpc.ChainID(ctx)
}
