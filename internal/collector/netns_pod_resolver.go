package collector

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/flowacctd/conntracct/internal/kernel"
	"github.com/flowacctd/conntracct/printer"
	cache "github.com/patrickmn/go-cache"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

// PodInfo is what NetnsPodResolver attaches to a flow once it resolves
// the source address to a running pod.
type PodInfo struct {
	Namespace string
	Pod       string
	Node      string
}

// PodLookup resolves a source IP to the pod currently holding it. Real
// usage passes a *kubernetes.Clientset-backed implementation; tests can
// supply a fake.
type PodLookup interface {
	PodForIP(ctx context.Context, ip net.IP) (PodInfo, bool, error)
}

// NetnsPodResolver resolves the Kubernetes pod whose IP matches each
// UPDATE/END record's source address and keeps the result in a TTL cache
// readable through Lookup, so a busy flow doesn't hit the API server on
// every event. The record itself is forwarded unchanged; it carries no
// pod field. The kernel's FlowBlock
// carries a raw netns inode (spec.md §3's Tuple/NetNS fields), which by
// itself identifies nothing past this host; cross-referencing the
// cluster's pod IPs is what turns it into an operator-legible label.
type NetnsPodResolver struct {
	next   Collector
	lookup PodLookup
	cache  *cache.Cache
}

// NewNetnsPodResolver wraps next, looking up the pod for every event's
// SrcAddr and caching the result for ttl.
func NewNetnsPodResolver(next Collector, lookup PodLookup, ttl time.Duration) *NetnsPodResolver {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &NetnsPodResolver{
		next:   next,
		lookup: lookup,
		cache:  cache.New(ttl, 2*ttl),
	}
}

var _ Collector = (*NetnsPodResolver)(nil)

// Process looks up the pod owning the flow's source address (logging,
// not failing, on a lookup error — enrichment is best-effort) and
// forwards the event unchanged; the resolved PodInfo is available via
// Lookup for a downstream stage that wants it (e.g. the admin server).
func (r *NetnsPodResolver) Process(ev kernel.AcctEvent) error {
	ip := addrToIP(ev.SrcAddr)
	if ip != nil {
		if _, err := r.resolve(ip); err != nil {
			printer.Debugf("netns pod resolver: %v\n", err)
		}
	}
	return r.next.Process(ev)
}

// Lookup returns the last resolved PodInfo for ip, if cached.
func (r *NetnsPodResolver) Lookup(ip net.IP) (PodInfo, bool) {
	v, ok := r.cache.Get(ip.String())
	if !ok {
		return PodInfo{}, false
	}
	return v.(PodInfo), true
}

func (r *NetnsPodResolver) resolve(ip net.IP) (PodInfo, error) {
	key := ip.String()
	if v, ok := r.cache.Get(key); ok {
		return v.(PodInfo), nil
	}

	info, found, err := r.lookup.PodForIP(context.Background(), ip)
	if err != nil {
		return PodInfo{}, err
	}
	if !found {
		r.cache.Set(key, PodInfo{}, cache.DefaultExpiration)
		return PodInfo{}, nil
	}

	r.cache.Set(key, info, cache.DefaultExpiration)
	return info, nil
}

func (r *NetnsPodResolver) Close() error {
	return r.next.Close()
}

func addrToIP(addr [16]byte) net.IP {
	var zero [16]byte
	if addr == zero {
		return nil
	}
	if addr[4] == 0 && addr[5] == 0 && addr[6] == 0 && addr[7] == 0 &&
		addr[8] == 0 && addr[9] == 0 && addr[10] == 0 && addr[11] == 0 &&
		addr[12] == 0 && addr[13] == 0 && addr[14] == 0 && addr[15] == 0 {
		return net.IPv4(addr[0], addr[1], addr[2], addr[3])
	}
	return net.IP(addr[:])
}

// ClientsetPodLookup implements PodLookup against a live cluster.
type ClientsetPodLookup struct {
	Clientset *kubernetes.Clientset
	Namespace string // empty means all namespaces
}

func (c *ClientsetPodLookup) PodForIP(ctx context.Context, ip net.IP) (PodInfo, bool, error) {
	pods, err := c.Clientset.CoreV1().Pods(c.Namespace).List(ctx, metav1.ListOptions{
		FieldSelector: fmt.Sprintf("status.podIP=%s", ip.String()),
	})
	if err != nil {
		return PodInfo{}, false, err
	}
	if len(pods.Items) == 0 {
		return PodInfo{}, false, nil
	}

	pod := pods.Items[0]
	return PodInfo{
		Namespace: pod.Namespace,
		Pod:       pod.Name,
		Node:      pod.Spec.NodeName,
	}, true, nil
}

var _ PodLookup = (*ClientsetPodLookup)(nil)
