package handlers

import (
	"fmt"
	"os"
	"sort"
	"strings"
)

// renderAutoindex builds the directory listing HTML: directories
// suffixed with '/', mtime as "DD-Mon-YYYY HH:MM", size "-" for directories.
// The "." entry is suppressed; ".." is kept.
func renderAutoindex(urlPath string, entries []os.DirEntry) []byte {
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var b strings.Builder
	b.WriteString("<html>\n<head><title>Index of ")
	b.WriteString(urlPath)
	b.WriteString("</title></head>\n<body>\n<h1>Index of ")
	b.WriteString(urlPath)
	b.WriteString("</h1><hr><pre>\n")

	b.WriteString("<a href=\"../\">../</a>\n")

	for _, e := range entries {
		if e.Name() == "." {
			continue
		}
		name := e.Name()
		info, err := e.Info()
		isDir := e.IsDir()
		display := name
		if isDir {
			display += "/"
		}
		href := display
		sizeCol := "-"
		mtimeCol := ""
		if err == nil {
			mtimeCol = info.ModTime().Format("02-Jan-2006 15:04")
			if !isDir {
				sizeCol = fmt.Sprintf("%d", info.Size())
			}
		}
		fmt.Fprintf(&b, "<a href=\"%s\">%s</a>%s%s%s%s\n",
			href, display,
			padding(display, 50),
			mtimeCol,
			padding(mtimeCol, 20),
			sizeCol)
	}

	b.WriteString("</pre><hr></body>\n</html>\n")
	return []byte(b.String())
}

func padding(s string, width int) string {
	n := width - len(s)
	if n < 1 {
		n = 1
	}
	return strings.Repeat(" ", n)
}
