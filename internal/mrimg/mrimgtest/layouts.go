package mrimgtest

import "github.com/deploymenttheory/go-mrimg-restore/internal/mrimg"

// Partition describes one partition for SimpleLayout
type Partition struct {
	Number           int32
	Start            uint64 // partition geometry start
	BootSectorOffset uint64
	FSStart          uint64
	LCN0Offset       uint64
	BlockSize        uint32
	BlockCount       uint32
	ReservedBytes    uint32 // file_system.reserved_sectors_byte_length
	History          []mrimg.FileHistory
	Reserved         []mrimg.DataBlockIndexElement
	Blocks           []mrimg.DataBlockIndexElement
	Delta            []mrimg.DeltaDataBlockIndexElement
}

// SimpleLayout returns a single disk layout with the given partitions.
// fileNumber and delta set the file header; track0 is the first track.
func SimpleLayout(fileNumber uint16, delta bool, track0 []byte, parts ...Partition) *mrimg.FileLayout {
	layout := &mrimg.FileLayout{
		Header: mrimg.FileHeader{
			BackupFormat:     "mrimg",
			BackupGUID:       "3F2504E0-4F89-11D3-9A0C-0305E82C3301",
			DeltaIndex:       delta,
			FileNumber:       fileNumber,
			ImagedDisksCount: 1,
			JSONVersion:      1,
		},
		Disks: []mrimg.DiskLayout{{
			Geometry: mrimg.DiskGeometry{BytesPerSector: 512, DiskSize: 64 << 20},
			Header:   mrimg.DiskHeader{DiskFormat: "MBR", ImagedPartitionCount: int32(len(parts))},
			Track0:   track0,
		}},
	}

	for _, p := range parts {
		layout.Disks[0].Partitions = append(layout.Disks[0].Partitions, mrimg.PartitionLayout{
			FileSystem: mrimg.FileSystem{
				Start:                     p.FSStart,
				LCN0Offset:                p.LCN0Offset,
				ReservedSectorsByteLength: p.ReservedBytes,
				Type:                      "NTFS",
			},
			Geometry: mrimg.PartitionGeometry{
				Start:            p.Start,
				BootSectorOffset: p.BootSectorOffset,
			},
			Header: mrimg.PartitionHeader{
				BlockCount:       p.BlockCount,
				BlockSize:        p.BlockSize,
				FileHistory:      p.History,
				FileHistoryCount: uint32(len(p.History)),
				PartitionNumber:  p.Number,
				DeltaIndex:       delta,
			},
			ReservedSectors:     p.Reserved,
			DataBlockIndex:      p.Blocks,
			DeltaDataBlockIndex: p.Delta,
		})
	}
	return layout
}
