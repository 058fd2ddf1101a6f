package provisioning

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strconv"
	"sync"
	"time"

	"github.com/imamik/spinless/internal/apperr"
	"github.com/imamik/spinless/internal/secretstore"
	"github.com/imamik/spinless/internal/util/naming"
	"github.com/imamik/spinless/internal/util/netutil"
	"github.com/imamik/spinless/internal/util/retry"
)

const networkIDKey = "network_id"

// NetworkAllocator hands out unique network ids from the counter kept in the
// secret store. Writes are check-and-set, so concurrent processes sharing the
// store never receive the same id.
type NetworkAllocator struct {
	store   secretstore.Store
	path    string
	base    string
	retries int
	delay   time.Duration

	mu sync.Mutex
}

// NewNetworkAllocator creates an allocator for the counter under root. Blocks
// are carved out of base, which must be /16 or larger.
func NewNetworkAllocator(store secretstore.Store, root, base string) *NetworkAllocator {
	return &NetworkAllocator{
		store:   store,
		path:    naming.Allocations(root),
		base:    base,
		retries: 10,
		delay:   50 * time.Millisecond,
	}
}

// Allocation is one reserved network.
type Allocation struct {
	ID        int
	CIDRBlock string
}

// Next reserves the next network id and returns it with its CIDR block.
func (a *NetworkAllocator) Next(ctx context.Context) (Allocation, error) {
	if _, err := netutil.NetworkBlock(a.base, 0); err != nil {
		return Allocation{}, apperr.E(apperr.KindValidation, "allocate network", err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var id int
	err := retry.WithExponentialBackoff(ctx, func() error {
		secret, err := secretstore.ReadOrEmpty(ctx, a.store, a.path)
		if err != nil {
			return retry.Fatal(apperr.SecretStore("read "+a.path, err))
		}

		current, err := parseNetworkID(secret.Data[networkIDKey])
		if err != nil {
			return retry.Fatal(fmt.Errorf("%s: %w", a.path, err))
		}

		data := maps.Clone(secret.Data)
		data[networkIDKey] = strconv.Itoa(current + 1)
		err = a.store.WriteCAS(ctx, a.path, data, secret.Version)
		if errors.Is(err, secretstore.ErrVersionConflict) {
			return err
		}
		if err != nil {
			return retry.Fatal(apperr.SecretStore("write "+a.path, err))
		}
		id = current + 1
		return nil
	},
		retry.WithMaxRetries(a.retries),
		retry.WithInitialDelay(a.delay),
		retry.WithMaxDelay(time.Second),
	)
	if err != nil {
		var fatal *retry.FatalError
		if errors.As(err, &fatal) {
			err = fatal.Err
		}
		return Allocation{}, fmt.Errorf("failed to allocate network: %w", err)
	}

	block, err := netutil.NetworkBlock(a.base, id)
	if err != nil {
		return Allocation{}, apperr.E(apperr.KindValidation, "allocate network", err)
	}
	return Allocation{ID: id, CIDRBlock: block}, nil
}

// parseNetworkID accepts the counter as written by this allocator (a string)
// or by other writers.
func parseNetworkID(v any) (int, error) {
	switch x := v.(type) {
	case nil:
		return 0, nil
	case string:
		if x == "" {
			return 0, nil
		}
		n, err := strconv.Atoi(x)
		if err != nil {
			return 0, fmt.Errorf("invalid network_id %q", x)
		}
		return n, nil
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			return 0, fmt.Errorf("invalid network_id %q", x)
		}
		return int(n), nil
	case float64:
		return int(x), nil
	case int:
		return x, nil
	case int64:
		return int(x), nil
	default:
		return 0, fmt.Errorf("invalid network_id of type %T", v)
	}
}
