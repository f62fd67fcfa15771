// Package lua runs delegated tasks as sandboxed Lua scripts.
//
// A script defines a global run function that receives the task as a
// table and returns the result string:
//
//	function run(task)
//	  delegate.log("working on " .. task.id)
//	  if task.input == "" then
//	    return nil, "no input"
//	  end
//	  return string.upper(task.instructions) .. ": " .. task.input
//	end
//
// The task table has the fields id, instructions, input and timeout_ms.
// Returning nil plus a message, or raising an error, fails the task.
//
// Every execution gets a fresh interpreter, so scripts cannot share
// state between tasks and any number of tasks may run concurrently. The
// script is compiled once and recompiled by Reload or, when watching is
// enabled, whenever the file changes on disk.
//
// # Sandbox
//
// Only the base, table, string and math libraries are opened. dofile,
// loadfile, load and loadstring are removed and there is no require, io
// or os. Scripts get a delegate module instead:
//
//	delegate.log(msg)    - write msg to the engine log
//	delegate.sleep(ms)   - pause, aborting if the task is cancelled
//
// Execution is bound to the task context, so a cancelled or timed out
// task interrupts even a script stuck in a loop.
package lua
