// Package pipe 提供有上限的管道缓冲区，用于收集运行时进程的输出
// 运行时的 stdout/stderr 被重定向到管道写入端，读取端最多保留
// max 字节，超出的部分被丢弃，保证日志采集不会撑爆内存
package pipe

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Buffer 包装一个管道写入端和固定上限的采集缓冲区
type Buffer struct {
	W      *os.File        // 管道写入端，交给子进程作为 stdout/stderr
	Buffer *bytes.Buffer   // 采集到的数据
	Done   <-chan struct{} // 采集完成时关闭
	Max    int64           // 采集上限（字节）
}

// NewPipe 创建管道并启动采集协程，把读取端最多 n 字节复制到 writer
// 超出部分持续读取并丢弃，避免子进程因管道写满而阻塞或收到 SIGPIPE
// 写入端由调用方负责关闭
func NewPipe(writer io.Writer, n int64) (<-chan struct{}, *os.File, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, nil, err
	}

	done := make(chan struct{})
	go func() {
		io.CopyN(writer, r, n)
		close(done)
		io.Copy(io.Discard, r)
		r.Close()
	}()

	return done, w, nil
}

// NewBuffer 创建上限为 max 字节的采集缓冲区
// 实际管道上限为 max+1，多出的一个字节用来判断输出是否被截断
// Done 通道只有在父进程关闭写入端副本后才会关闭
func NewBuffer(max int64) (*Buffer, error) {
	buffer := new(bytes.Buffer)
	done, w, err := NewPipe(buffer, max+1)
	if err != nil {
		return nil, err
	}

	return &Buffer{
		W:      w,
		Max:    max,
		Buffer: buffer,
		Done:   done,
	}, nil
}

// Truncated 报告输出是否超过了采集上限
func (b *Buffer) Truncated() bool {
	return int64(b.Buffer.Len()) > b.Max
}

// Bytes 返回采集到的数据，截断到上限以内
func (b *Buffer) Bytes() []byte {
	data := b.Buffer.Bytes()
	if int64(len(data)) > b.Max {
		return data[:b.Max]
	}
	return data
}

// String 返回 Buffer 的当前状态，格式为 Buffer[当前/上限]
func (b Buffer) String() string {
	return fmt.Sprintf("Buffer[%d/%d]", b.Buffer.Len(), b.Max)
}
