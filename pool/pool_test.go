package pool_test

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/nettransport/pool"
)

type fakeClient struct {
	id          int
	connected   bool
	reconnectOK bool
	closed      bool
}

func (c *fakeClient) IsConnected() bool { return c.connected }
func (c *fakeClient) Reconnect() error {
	if c.reconnectOK {
		c.connected = true
		return nil
	}
	return errors.New("reconnect failed")
}
func (c *fakeClient) Close() error { c.closed = true; return nil }

var _ = Describe("Pool", func() {
	It("initializes n clients synchronously", func() {
		p := pool.New[*fakeClient]()
		Expect(p.Initialize(3, func(i int) (*fakeClient, error) {
			return &fakeClient{id: i, connected: true}, nil
		})).To(Succeed())

		Expect(p.Size()).To(Equal(3))
		Expect(p.Active()).To(Equal(3))
	})

	It("aborts initialization and reports the failing index", func() {
		p := pool.New[*fakeClient]()
		err := p.Initialize(3, func(i int) (*fakeClient, error) {
			if i == 1 {
				return nil, errors.New("boom")
			}
			return &fakeClient{id: i, connected: true}, nil
		})

		Expect(err).To(HaveOccurred())
		Expect(pool.FailedIndex(err)).To(Equal(1))
	})

	It("acquires and releases a connected client", func() {
		p := pool.New[*fakeClient]()
		Expect(p.Initialize(1, func(i int) (*fakeClient, error) {
			return &fakeClient{connected: true}, nil
		})).To(Succeed())

		c, ok := p.Acquire()
		Expect(ok).To(BeTrue())
		p.Release(c)

		c2, ok := p.Acquire()
		Expect(ok).To(BeTrue())
		Expect(c2).To(Equal(c))
	})

	It("drops a client that fails to reconnect on release", func() {
		p := pool.New[*fakeClient]()
		Expect(p.Initialize(1, func(i int) (*fakeClient, error) {
			return &fakeClient{connected: true}, nil
		})).To(Succeed())

		c, _ := p.Acquire()
		c.connected = false
		c.reconnectOK = false

		p.Release(c)
		Expect(p.Active()).To(Equal(0))
	})

	It("wakes blocked Acquire calls on Shutdown with ok=false", func() {
		p := pool.New[*fakeClient]()
		Expect(p.Initialize(0, func(i int) (*fakeClient, error) { return nil, nil })).To(Succeed())

		done := make(chan bool, 1)
		go func() {
			_, ok := p.Acquire()
			done <- ok
		}()

		time.Sleep(10 * time.Millisecond)
		p.Shutdown()

		Eventually(done).Should(Receive(BeFalse()))
	})
})
