package gpucore

// WorkgroupCount returns the number of workgroups of size wg needed to
// cover n invocations: ceil(n / wg). It returns 0 when n or wg is 0.
func WorkgroupCount(n, wg uint32) uint32 {
	if n == 0 || wg == 0 {
		return 0
	}
	return (n-1)/wg + 1
}

// GridSize returns the 3D dispatch grid covering extent with workgroups of
// size wg, one WorkgroupCount per axis. Zero workgroup dimensions are
// treated as 1.
func GridSize(extent, wg [3]uint32) [3]uint32 {
	var grid [3]uint32
	for i := range grid {
		size := wg[i]
		if size == 0 {
			size = 1
		}
		grid[i] = WorkgroupCount(extent[i], size)
	}
	return grid
}
