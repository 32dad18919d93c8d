// Package progress renders transfer progress for concurrent pipelines.
//
// A Board owns the terminal. It shows one aggregated line counting finished
// descriptors and one bar per transfer that is currently running:
//
//	bootstrapping [=============>                ] 3/7 files
//	  ffmpeg.zip   [======>      ]  41.2%  31 MB/76 MB  12 MB/s
//	  node.zip     [==>          ]  17.0%  4.9 MB/29 MB  3.1 MB/s
//
// Every write to the terminal, including log lines routed through
// Board.Writer, happens under a single Gate so concurrent tasks never
// interleave partial frames. When the output is not a terminal the board
// falls back to one plain line per event.
package progress
