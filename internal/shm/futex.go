package shm

// wakeAll is the futex wake count for "every waiter".
const wakeAll = 1<<31 - 1
