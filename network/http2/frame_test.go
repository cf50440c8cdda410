package http2_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/nettransport/network/http2"
)

var _ = Describe("Frame header", func() {
	It("round-trips length/type/flags/stream-id", func() {
		buf := make([]byte, http2.HeaderLen)
		h := http2.FrameHeader{Length: 1234, Type: http2.FrameHeaders, Flags: http2.FlagEndHeaders, StreamID: 7}

		Expect(http2.EncodeHeader(buf, h)).To(Succeed())

		got, err := http2.DecodeHeader(buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(h))
	})

	It("rejects a length over 2^24-1", func() {
		buf := make([]byte, http2.HeaderLen)
		err := http2.EncodeHeader(buf, http2.FrameHeader{Length: http2.MaxFrameLength + 1})
		Expect(err).To(HaveOccurred())
	})

	It("masks the reserved top bit of the stream id on decode", func() {
		buf := make([]byte, http2.HeaderLen)
		Expect(http2.EncodeHeader(buf, http2.FrameHeader{StreamID: 1})).To(Succeed())
		buf[5] |= 0x80 // set reserved bit directly on the wire

		got, err := http2.DecodeHeader(buf)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.StreamID).To(Equal(uint32(1)))
	})
})

var _ = Describe("DATA frame", func() {
	It("decodes an unpadded payload with END_STREAM", func() {
		raw := http2.EncodeData(3, []byte("payload"), true)
		h, err := http2.DecodeHeader(raw)
		Expect(err).NotTo(HaveOccurred())

		d, err := http2.DecodeData(h, raw[http2.HeaderLen:])
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Data).To(Equal([]byte("payload")))
		Expect(d.EndStream).To(BeTrue())
	})

	It("strips PADDED payloads", func() {
		h := http2.FrameHeader{Type: http2.FrameData, Flags: http2.FlagPadded, StreamID: 3}
		payload := append([]byte{2}, append([]byte("hi"), []byte{0, 0}...)...)

		d, err := http2.DecodeData(h, payload)
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Data).To(Equal([]byte("hi")))
	})

	It("rejects a zero stream id", func() {
		_, err := http2.DecodeData(http2.FrameHeader{StreamID: 0}, []byte("x"))
		Expect(err).To(HaveOccurred())
	})

	It("rejects pad length exceeding the payload", func() {
		h := http2.FrameHeader{Flags: http2.FlagPadded, StreamID: 3}
		_, err := http2.DecodeData(h, []byte{200, 1, 2})
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("SETTINGS frame", func() {
	It("round-trips a list of settings", func() {
		raw := http2.EncodeSettings([]http2.Setting{{Identifier: 0x3, Value: 100}, {Identifier: 0x4, Value: 65535}})
		h, err := http2.DecodeHeader(raw)
		Expect(err).NotTo(HaveOccurred())

		f, err := http2.DecodeSettings(h, raw[http2.HeaderLen:])
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Settings).To(HaveLen(2))
		Expect(f.Settings[0].Value).To(Equal(uint32(100)))
	})

	It("rejects a nonempty ACK payload", func() {
		_, err := http2.DecodeSettings(http2.FrameHeader{Flags: http2.FlagACK}, []byte{1})
		Expect(err).To(HaveOccurred())
	})

	It("rejects a payload not a multiple of 6", func() {
		_, err := http2.DecodeSettings(http2.FrameHeader{}, []byte{1, 2, 3})
		Expect(err).To(HaveOccurred())
	})

	It("rejects a nonzero stream id", func() {
		_, err := http2.DecodeSettings(http2.FrameHeader{StreamID: 1}, nil)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("RST_STREAM, PING, GOAWAY, WINDOW_UPDATE", func() {
	It("round-trips RST_STREAM", func() {
		raw := http2.EncodeRSTStream(5, 8)
		h, _ := http2.DecodeHeader(raw)
		f, err := http2.DecodeRSTStream(h, raw[http2.HeaderLen:])
		Expect(err).NotTo(HaveOccurred())
		Expect(f.ErrorCode).To(Equal(uint32(8)))
	})

	It("round-trips PING", func() {
		raw := http2.EncodePing([8]byte{1, 2, 3, 4, 5, 6, 7, 8}, false)
		h, _ := http2.DecodeHeader(raw)
		f, err := http2.DecodePing(h, raw[http2.HeaderLen:])
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Data).To(Equal([8]byte{1, 2, 3, 4, 5, 6, 7, 8}))
		Expect(f.ACK).To(BeFalse())
	})

	It("rejects a PING payload that isn't 8 bytes", func() {
		_, err := http2.DecodePing(http2.FrameHeader{}, []byte{1, 2, 3})
		Expect(err).To(HaveOccurred())
	})

	It("round-trips GOAWAY", func() {
		raw := http2.EncodeGoAway(9, 1, []byte("debug"))
		h, _ := http2.DecodeHeader(raw)
		f, err := http2.DecodeGoAway(h, raw[http2.HeaderLen:])
		Expect(err).NotTo(HaveOccurred())
		Expect(f.LastStreamID).To(Equal(uint32(9)))
		Expect(f.DebugData).To(Equal([]byte("debug")))
	})

	It("round-trips WINDOW_UPDATE", func() {
		raw := http2.EncodeWindowUpdate(0, 1024)
		h, _ := http2.DecodeHeader(raw)
		f, err := http2.DecodeWindowUpdate(h, raw[http2.HeaderLen:])
		Expect(err).NotTo(HaveOccurred())
		Expect(f.Increment).To(Equal(uint32(1024)))
	})

	It("rejects a zero WINDOW_UPDATE increment", func() {
		_, err := http2.DecodeWindowUpdate(http2.FrameHeader{}, []byte{0, 0, 0, 0})
		Expect(err).To(HaveOccurred())
	})
})
