package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load(MapSource{}, "disk.img", "/bin/app", []string{"--flag"})
	require.NoError(t, err)
	require.Equal(t, "disk.img", s.DiskImage)
	require.Equal(t, uint64(1), s.EThreads)
	require.Equal(t, uint64(4), s.SThreads)
	require.True(t, s.GetTimeVDSO)
	require.Len(t, s.Disks, 1)
	require.Equal(t, "/", s.Disks[0].Mount)
	require.False(t, s.Disks[0].ReadOnly)
	require.Equal(t, "10.0.1.1", s.Net.IP4.String())
	require.Equal(t, 24, s.Net.Mask4)
}

func TestLoadHDSEntries(t *testing.T) {
	src := MapSource{
		"SGXLKL_HDS":   "secondary.img:/mnt/data,third.img:/mnt/ro:1",
		"SGXLKL_HD_RO": "1",
	}
	s, err := Load(src, "root.img", "/bin/app", nil)
	require.NoError(t, err)
	require.Len(t, s.Disks, 3)
	require.Equal(t, "/", s.Disks[0].Mount)
	require.True(t, s.Disks[0].ReadOnly)
	require.Equal(t, DiskEntry{Path: "secondary.img", Mount: "/mnt/data", ReadOnly: false}, s.Disks[1])
	require.Equal(t, DiskEntry{Path: "third.img", Mount: "/mnt/ro", ReadOnly: true}, s.Disks[2])
}

func TestLoadHDSMalformedEntry(t *testing.T) {
	src := MapSource{"SGXLKL_HDS": "onlypath"}
	_, err := Load(src, "root.img", "/bin/app", nil)
	require.Error(t, err)
}

func TestLoadNetOverrides(t *testing.T) {
	src := MapSource{
		"SGXLKL_TAP":      "sgxlkl_tap0",
		"SGXLKL_IP4":      "10.0.2.5",
		"SGXLKL_GW4":      "10.0.2.254",
		"SGXLKL_MASK4":    "16",
		"SGXLKL_HOSTNAME": "guest",
	}
	s, err := Load(src, "root.img", "/bin/app", nil)
	require.NoError(t, err)
	require.Equal(t, "sgxlkl_tap0", s.Net.Tap)
	require.Equal(t, "10.0.2.5", s.Net.IP4.String())
	require.Equal(t, 16, s.Net.Mask4)
	require.Equal(t, "guest", s.Net.Hostname)
}

func TestLoadInvalidIP4(t *testing.T) {
	src := MapSource{"SGXLKL_IP4": "not-an-ip"}
	_, err := Load(src, "root.img", "/bin/app", nil)
	require.Error(t, err)
}

func TestLoadShmem(t *testing.T) {
	src := MapSource{"SGXLKL_SHMEM_FILE": "/dev/shm/sgxlkl", "SGXLKL_SHMEM_SIZE": "4096"}
	s, err := Load(src, "root.img", "/bin/app", nil)
	require.NoError(t, err)
	require.Equal(t, "/dev/shm/sgxlkl", s.Shmem.File)
	require.Equal(t, uint64(4096), s.Shmem.Size)
}

func TestLoadRejectsOutOfRangeThreadCount(t *testing.T) {
	src := MapSource{"SGXLKL_ETHREADS": "99999"}
	_, err := Load(src, "root.img", "/bin/app", nil)
	require.Error(t, err)
}
