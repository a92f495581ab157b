// Package identity folds a four-tuple into a short stable string, adapted
// from decoder/packet/connection.go's connectionID.String()/calcMd5 pattern
// (there used to key an atomicConnMap and to compute a Connection's UID).
package identity

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/dreadl0ck/cryptoutils"

	"github.com/flowforge/rxtoe/tcpmodel"
)

// Ident returns a stable hex-encoded MD5 digest of a FourTuple, suitable for
// log fields, debug-capture directory names, and fake-service map keys —
// the same role connectionID.String() plays for the teacher's atomicConnMap,
// but hashed the way saveFile.go hashes attachment bodies via
// cryptoutils.MD5Data, rather than naive decimal concatenation.
func Ident(ft tcpmodel.FourTuple) string {
	var buf [12]byte

	binary.BigEndian.PutUint32(buf[0:4], ft.SrcIP)
	binary.BigEndian.PutUint32(buf[4:8], ft.DstIP)
	binary.BigEndian.PutUint16(buf[8:10], ft.SrcPort)
	binary.BigEndian.PutUint16(buf[10:12], ft.DstPort)

	return hex.EncodeToString(cryptoutils.MD5Data(buf[:]))
}
