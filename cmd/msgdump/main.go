// msgdump decodes hex encoded wire messages read from stdin and logs one
// JSON line per message. Input may span several lines; whitespace is
// ignored.
package main

import (
	"encoding/hex"
	"flag"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/joseferreira/stakenet/internal/infra"
	"github.com/joseferreira/stakenet/internal/message"
)

func main() {
	framed := flag.Bool("framed", false, "input is a stream of varint length-prefixed frames")
	flag.Parse()

	config := infra.LoadConfig()
	infra.SetupLogging(os.Stdout, config.LogLevel)

	sctx, err := config.SerializationContext()
	if err != nil {
		logrus.WithError(err).Fatal("Invalid serialization limits")
	}

	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to read stdin")
	}
	raw, err := hex.DecodeString(strings.Join(strings.Fields(string(input)), ""))
	if err != nil {
		logrus.WithError(err).Fatal("Input is not hex")
	}

	offset := 0
	for offset < len(raw) {
		buf := raw[offset:]
		consumed := 0
		if *framed {
			payload, n, err := unframe(buf, sctx.MaxMessageSize)
			if err != nil {
				logrus.WithError(err).WithField("offset", offset).Fatal("Invalid frame")
			}
			buf, consumed = payload, n-len(payload)
		}

		msg, n, err := message.Decode(buf, sctx)
		if err != nil {
			logrus.WithError(err).WithField("offset", offset).Fatal("Failed to decode message")
		}
		if *framed && n != len(buf) {
			logrus.WithField("offset", offset).Fatalf("%d trailing bytes in frame", len(buf)-n)
		}
		logrus.WithFields(describe(msg)).WithFields(logrus.Fields{
			"offset": offset,
			"size":   n,
		}).Info(msg.Type().String())
		offset += consumed + n
	}
}
