package transfer

const (
	KiB int64 = 1 << 10
	MiB       = KiB << 10
	GiB       = MiB << 10
)

// ChunkSize picks the read size for a transfer. It grows with the declared
// size; unknown sizes get a middle value.
func ChunkSize(declared int64) int64 {
	switch {
	case declared <= 0:
		return 64 * KiB
	case declared < MiB:
		return KiB
	case declared < GiB:
		return MiB
	case declared < 10*GiB:
		return 10 * MiB
	default:
		return 50 * MiB
	}
}
