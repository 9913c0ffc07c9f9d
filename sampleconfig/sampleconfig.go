// Copyright (c) 2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package sampleconfig

// FileContents is a string containing the commented example config for btcpd.
const FileContents = `[Application Options]

; ------------------------------------------------------------------------------
; Data settings
; ------------------------------------------------------------------------------

; The directory to store data such as the fee estimator state.  The default is
; ~/.btcpd/data on POSIX OSes, $LOCALAPPDATA/Btcpd/data on Windows and
; ~/Library/Application Support/Btcpd/data on macOS.  Environment variables
; are expanded so they may be used.  NOTE: Windows environment variables are
; typically %VARIABLE%, but they must be accessed with $VARIABLE here.
; datadir=~/.btcpd/data                            ; Unix
; datadir=$LOCALAPPDATA/Btcpd/data                 ; Windows
; datadir=~/Library/Application Support/Btcpd/data ; macOS

; The directory to store log files.
; logdir=~/.btcpd/logs


; ------------------------------------------------------------------------------
; Network settings
; ------------------------------------------------------------------------------

; Use testnet.
; testnet=1

; Use the regression test network.  Blocks are mined on demand and the
; transaction pool is checked for consistency after every change.
; regtest=1


; ------------------------------------------------------------------------------
; Debug
; ------------------------------------------------------------------------------

; Debug logging level.
; Valid levels are {trace, debug, info, warn, error, critical}
; You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set
; log level for individual subsystems.  Use btcpd --debuglevel=show to list
; available subsystems.
; debuglevel=info

; The port used to listen for HTTP profile requests.  The profile server will
; be disabled if this option is not specified.  The profile information can be
; accessed at http://localhost:<profileport>/debug/pprof once running.
; profile=6061


; ------------------------------------------------------------------------------
; Transaction pool settings
; ------------------------------------------------------------------------------

; Set the minimum transaction fee in BTCP/kB to be considered a non-zero fee.
; minrelaytxfee=0.000001

; Do not require free or low-fee transactions to have high priority for
; relaying.
; norelaypriority=0

; Accept or reject non-standard transactions regardless of the defaults of the
; active network.  Only one of the two may be set.
; relaynonstd=1
; rejectnonstd=1

; Maximum memory used by the transaction pool in megabytes.  The lowest fee
; rate transactions are evicted first.  0 disables the limit.
; maxmempool=300

; Maintain the address and spent indices of the transaction pool.
; addrindex=1

; Verify the consistency of the transaction pool after every block.
; checkmempool=1

; Do not estimate fees nor keep the estimator state between runs.
; nofeeestimator=1


; ------------------------------------------------------------------------------
; Optional Transaction Selection
; ------------------------------------------------------------------------------

; Set the minimum block size to be used when creating a block.
; blockminsize=0

; Set the maximum block size to be used when creating a block.
; blockmaxsize=2000000

; Set the size in bytes for high-priority/low-fee transactions when creating a
; block.
; blockprioritysize=1000000

; How often the cached block template is refreshed.
; templaterefresh=5s


; ------------------------------------------------------------------------------
; Coin Generation (Mining) Settings
; ------------------------------------------------------------------------------

; Enable built-in CPU mining.
;
; NOTE: This is typically only useful for testing purposes such as the
; regression test network since it is not profitable to mine with a CPU on
; the main network.
; generate=false

; Add addresses to pay mined blocks to in the coinbase transaction.  One of
; them is chosen at random for every block.  At least one address is required
; when generate is set.
; miningaddr=b1...
; miningaddr=b1...

; Number of CPU mining workers, -1 for one per core.
; genproclimit=-1
`
